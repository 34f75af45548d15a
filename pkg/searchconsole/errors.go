package searchconsole

import (
	"fmt"
	"net/http"
)

type HTTPError struct {
	*http.Response
}

func (err *HTTPError) Error() string {
	return fmt.Sprintf("status_code:%d", err.StatusCode)
}

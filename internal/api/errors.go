package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// NetworkError means the request never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the request ran out of time.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// UserMessage is the text shown to the user for this failure.
func (e *NetworkError) UserMessage() string {
	var opErr *net.OpError
	switch {
	case e.Timeout():
		return "Request Timeout, Please Try Again Later"
	case errors.As(e.Err, &opErr):
		return "Network Connection Failed, Please Check Your Network"
	default:
		return "Server Unresponsive, Please Try Again Later"
	}
}

// StatusError is a non-2xx HTTP answer.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d %s", e.Op, e.StatusCode, e.Message)
}

// UserMessage maps the status to the notice shown to the user.
func (e *StatusError) UserMessage() string {
	switch e.StatusCode {
	case http.StatusBadRequest:
		if e.Message != "" {
			return e.Message
		}
		return "Invalid Request Parameters"
	case http.StatusUnauthorized:
		return "Not Logged In or Login Expired"
	case http.StatusForbidden:
		return "No Permission to Access"
	case http.StatusNotFound:
		return "Requested Resource Not Found"
	case http.StatusTooManyRequests:
		return "Too Many Requests, Please Slow Down"
	case http.StatusInternalServerError:
		return "Server Error, Please Try Again Later"
	default:
		if e.Message != "" {
			return e.Message
		}
		return "Request Failed"
	}
}

// APIError is a 200 answer whose envelope carries a non-zero code.
type APIError struct {
	Op      string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: code %d: %s", e.Op, e.Code, e.Message)
}

func (e *APIError) UserMessage() string { return e.Message }

// UserMessage extracts a display string from any client error.
func UserMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return err.Error()
}

// IsUnauthorized reports a rejected or expired token.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

package api

import (
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/likeshelf/likeshelf-server/internal/http/response"
)

// EnvelopeVersion is the version of the response envelope format.
const EnvelopeVersion = response.Version

// EnvelopeTransformer wraps every huma response body in the
// {v, success, data | error} envelope. Error values become the error half;
// anything else is data.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if env, ok := v.(response.Envelope); ok {
		return env, nil
	}

	code, _ := strconv.Atoi(status)

	switch val := v.(type) {
	case *APIError:
		return response.Failure(&response.ErrorBody{
			Code:    val.Code,
			Message: val.Message,
			Details: val.Details,
		}), nil
	case error:
		return response.Failure(&response.ErrorBody{
			Code:    string(response.StatusCode(code)),
			Message: val.Error(),
		}), nil
	}

	if code >= 400 {
		return response.Failure(&response.ErrorBody{
			Code:    string(response.StatusCode(code)),
			Message: "request failed",
			Details: v,
		}), nil
	}
	return response.Success(v), nil
}

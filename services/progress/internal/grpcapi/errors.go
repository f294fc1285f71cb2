package grpcapi

import (
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const errorDomain = "progress"

func errWithInfo(c codes.Code, reason, msg string) error {
	st := status.New(c, msg)
	st2, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain})
	if err != nil {
		return st.Err()
	}
	return st2.Err()
}

func errInvalidArgument(reason, msg string, fieldViolations map[string]string) error {
	st := status.New(codes.InvalidArgument, msg)
	info := &errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}

	bad := &errdetails.BadRequest{}
	for field, desc := range fieldViolations {
		bad.FieldViolations = append(bad.FieldViolations, &errdetails.BadRequest_FieldViolation{Field: field, Description: desc})
	}

	st2, err := st.WithDetails(info, bad)
	if err != nil {
		return st.Err()
	}
	return st2.Err()
}

func errUnauthenticated(reason, msg string) error {
	return errWithInfo(codes.Unauthenticated, reason, msg)
}

func errUnavailable(reason, msg string) error {
	return errWithInfo(codes.Unavailable, reason, msg)
}

// Reason extracts the ErrorInfo reason from a status error, or "".
func Reason(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

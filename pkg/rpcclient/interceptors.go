package rpcclient

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"github.com/impala-query/fragment-runtime/pkg/rpcerr"
)

// unwrapStreamInterceptor strips the wrapping opentracing's
// StreamClientInterceptor adds around a stream's RecvMsg errors, so an
// errors.As(&rpcerr.TransportError{}) check on a streaming call's error
// is not hidden behind the tracing layer's wrapper. It applies to
// streaming calls only: ReportExecStatus is a unary call and wraps its own
// errors with rpcerr.Wrap, so FragmentExecState's ReportStatusCb retry does
// not pass through this interceptor. Unwrapping stops the moment a *rpcerr.TransportError surfaces in the
// chain: that sentinel is the one classification the retry logic looks
// for, and unwrapping past it would discard it in favor of whatever
// lower-level connection error it wraps.
func unwrapStreamInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		stream, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			return nil, err
		}
		return &unwrappingClientStream{ClientStream: stream}, nil
	}
}

type unwrappingClientStream struct {
	grpc.ClientStream
}

func (s *unwrappingClientStream) RecvMsg(m interface{}) error {
	err := s.ClientStream.RecvMsg(m)
	if err == nil {
		return nil
	}
	return unwrapToTransportCause(err)
}

// unwrapToTransportCause returns the *rpcerr.TransportError in err's chain
// if there is one, so the retry discipline's own errors.As check still
// matches through the tracing wrapper; otherwise it falls back to peeling
// one layer of wrapping, same as a plain opentracing error would need.
func unwrapToTransportCause(err error) error {
	var transportErr *rpcerr.TransportError
	if errors.As(err, &transportErr) {
		return transportErr
	}
	if wrapped := errors.Unwrap(err); wrapped != nil {
		return wrapped
	}
	return err
}

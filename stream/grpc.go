package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/tliron/commonlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/protobuf/types/descriptorpb"
)

var log = commonlog.GetLogger("stream")

// DefaultMethod is the full name of the block streaming RPC.
const DefaultMethod = "sf.substreams.rpc.v2.Stream/Blocks"

// GRPCClient streams blocks over gRPC without generated stubs: the
// streaming method is resolved through server reflection and the request
// is built as a dynamic message, so any endpoint whose request message
// carries the usual block-range fields works.
type GRPCClient struct {
	// Method overrides the full "service/Method" name. Empty means
	// DefaultMethod.
	Method string
}

// NewGRPCClient creates a client using the default streaming method.
func NewGRPCClient() *GRPCClient {
	return &GRPCClient{}
}

// Open dials the endpoint, resolves the streaming method, sends the
// range request and returns a channel of serialized records. The channel
// closes when the server ends the stream or on a receive failure.
func (c *GRPCClient) Open(ctx context.Context, req Request) (<-chan Record, error) {
	conn, err := grpc.Dial(req.Endpoint, grpc.WithTransportCredentials(transportCredentials(req.Endpoint)))
	if err != nil {
		return nil, fmt.Errorf("stream: dial %s: %w", req.Endpoint, err)
	}

	methodDesc, err := c.resolveMethod(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	reqMsg, err := buildRequest(methodDesc.GetInputType(), req)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if req.Token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx,
			"authorization", "Bearer "+req.Token,
			"x-api-key", req.Token)
	}

	streamDesc := &grpc.StreamDesc{
		StreamName:    methodDesc.GetName(),
		ServerStreams: true,
	}
	grpcStream, err := conn.NewStream(ctx, streamDesc, "/"+c.method())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("stream: open %s: %w", c.method(), err)
	}
	if err := grpcStream.SendMsg(reqMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("stream: send request: %w", err)
	}
	if err := grpcStream.CloseSend(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("stream: close send: %w", err)
	}

	records := make(chan Record)
	go func() {
		defer close(records)
		defer conn.Close()
		for {
			msg := dynamic.NewMessage(methodDesc.GetOutputType())
			if err := grpcStream.RecvMsg(msg); err != nil {
				if err != io.EOF {
					log.Errorf("receive on %s: %v", req.Endpoint, err)
				}
				return
			}
			data, err := msg.MarshalJSON()
			if err != nil {
				log.Errorf("render record: %v", err)
				continue
			}
			select {
			case records <- Record(data):
			case <-ctx.Done():
				return
			}
		}
	}()

	return records, nil
}

func (c *GRPCClient) method() string {
	if c.Method != "" {
		return c.Method
	}
	return DefaultMethod
}

// resolveMethod looks up the streaming method's descriptor through the
// server's reflection service.
func (c *GRPCClient) resolveMethod(ctx context.Context, conn *grpc.ClientConn) (*desc.MethodDescriptor, error) {
	parts := strings.Split(c.method(), "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("stream: invalid method %q (expected 'service/Method')", c.method())
	}
	serviceName, methodName := parts[0], parts[1]

	refClient := grpcreflect.NewClientV1Alpha(ctx, rpb.NewServerReflectionClient(conn))
	defer refClient.Reset()

	svcDesc, err := refClient.ResolveService(serviceName)
	if err != nil {
		return nil, fmt.Errorf("stream: resolve service %s: %w", serviceName, err)
	}
	methodDesc := svcDesc.FindMethodByName(methodName)
	if methodDesc == nil {
		return nil, fmt.Errorf("stream: method %s not found in service %s", methodName, serviceName)
	}
	if !methodDesc.IsServerStreaming() {
		return nil, fmt.Errorf("stream: method %s is not server streaming", c.method())
	}
	return methodDesc, nil
}

// buildRequest fills the range fields the request message actually
// declares. Unknown fields are left at their defaults so the client works
// against any request schema carrying the conventional names.
func buildRequest(msgDesc *desc.MessageDescriptor, req Request) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(msgDesc)

	fields := map[string]any{
		"start_block_num":    req.Start,
		"stop_block_num":     req.Stop,
		"output_module":      req.Module,
		"output_module_name": req.Module,
		"package":            req.Package,
	}
	for name, value := range fields {
		field := msgDesc.FindFieldByName(name)
		if field == nil {
			continue
		}
		converted, ok := convertScalar(value, field)
		if !ok {
			continue
		}
		if err := msg.TrySetField(field, converted); err != nil {
			return nil, fmt.Errorf("stream: set field %s: %w", name, err)
		}
	}
	return msg, nil
}

// convertScalar coerces a request value to the field's wire type.
func convertScalar(value any, field *desc.FieldDescriptor) (any, bool) {
	switch field.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_INT64,
		descriptorpb.FieldDescriptorProto_TYPE_SINT64,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		switch v := value.(type) {
		case int64:
			return v, true
		case uint64:
			return int64(v), true
		}
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64,
		descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		switch v := value.(type) {
		case int64:
			return uint64(v), true
		case uint64:
			return v, true
		}
	case descriptorpb.FieldDescriptorProto_TYPE_INT32,
		descriptorpb.FieldDescriptorProto_TYPE_SINT32,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED32:
		switch v := value.(type) {
		case int64:
			return int32(v), true
		case uint64:
			return int32(v), true
		}
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32,
		descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		switch v := value.(type) {
		case int64:
			return uint32(v), true
		case uint64:
			return uint32(v), true
		}
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		if v, ok := value.(string); ok && v != "" {
			return v, true
		}
	}
	return nil, false
}

// transportCredentials picks TLS for conventional TLS ports, plaintext
// otherwise (local stubs, dev servers).
func transportCredentials(endpoint string) credentials.TransportCredentials {
	if strings.HasSuffix(endpoint, ":443") {
		return credentials.NewTLS(&tls.Config{})
	}
	return insecure.NewCredentials()
}

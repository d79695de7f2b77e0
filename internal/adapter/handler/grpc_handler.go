package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/inventory-control/internal/core/domain"
	"github.com/rl1809/inventory-control/internal/core/service"
)

const stockServiceName = "inventory.StockService"

type StockAmountRequest struct {
	ProductID int64 `json:"product_id"`
	Amount    int32 `json:"amount"`
}

type ReserveRequest struct {
	RequestID string `json:"request_id"`
	ProductID int64  `json:"product_id"`
	StockID   int64  `json:"stock_id"`
	Amount    int32  `json:"amount"`
}

type SetQuantityRPCRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

// StockReply carries business failures in the body; the RPC itself only
// fails on transport errors.
type StockReply struct {
	Success bool           `json:"success"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message"`
	Stock   *StockResponse `json:"stock,omitempty"`
}

// StockServiceServer is implemented by GRPCHandler.
type StockServiceServer interface {
	Deduct(context.Context, *StockAmountRequest) (*StockReply, error)
	Restore(context.Context, *StockAmountRequest) (*StockReply, error)
	Reserve(context.Context, *ReserveRequest) (*StockReply, error)
	SetQuantity(context.Context, *SetQuantityRPCRequest) (*StockReply, error)
}

type GRPCHandler struct {
	services Services
	logger   *zap.Logger
}

func NewGRPCHandler(services Services, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{services: services, logger: logger}
}

func RegisterStockServiceServer(s grpc.ServiceRegistrar, srv StockServiceServer) {
	s.RegisterService(&stockServiceDesc, srv)
}

func (h *GRPCHandler) Deduct(ctx context.Context, req *StockAmountRequest) (*StockReply, error) {
	stock, err := h.services.Deduct.Deduct(ctx, domain.ProductID(req.ProductID), int(req.Amount))
	return h.reply("Deduct", stock, err, "stock deducted"), nil
}

func (h *GRPCHandler) Restore(ctx context.Context, req *StockAmountRequest) (*StockReply, error) {
	stock, err := h.services.Restore.Restore(ctx, domain.ProductID(req.ProductID), int(req.Amount))
	return h.reply("Restore", stock, err, "stock restored"), nil
}

func (h *GRPCHandler) Reserve(ctx context.Context, req *ReserveRequest) (*StockReply, error) {
	stock, err := h.services.Reserve.Reserve(ctx, service.ReservationRequest{
		RequestID: req.RequestID,
		ProductID: domain.ProductID(req.ProductID),
		StockID:   domain.ProductStockID(req.StockID),
		Amount:    int(req.Amount),
	})
	return h.reply("Reserve", stock, err, "stock reserved"), nil
}

func (h *GRPCHandler) SetQuantity(ctx context.Context, req *SetQuantityRPCRequest) (*StockReply, error) {
	stock, err := h.services.Set.SetQuantity(ctx, domain.ProductID(req.ProductID), int(req.Quantity))
	return h.reply("SetQuantity", stock, err, "stock quantity set"), nil
}

func (h *GRPCHandler) reply(method string, stock domain.ProductStock, err error, ok string) *StockReply {
	if err != nil {
		code, _ := classify(err)
		if code == CodeInternal {
			h.logger.Error("stock rpc failed", zap.String("method", method), zap.Error(err))
		}
		return &StockReply{Success: false, Code: code, Message: publicMessage(code, err)}
	}
	view := toStockResponse(stock)
	return &StockReply{Success: true, Message: ok, Stock: &view}
}

func unaryHandler[Req any](
	method string,
	call func(StockServiceServer, context.Context, *Req) (*StockReply, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StockServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + stockServiceName + "/" + method,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(StockServiceServer), ctx, req.(*Req))
			})
		},
	}
}

var stockServiceDesc = grpc.ServiceDesc{
	ServiceName: stockServiceName,
	HandlerType: (*StockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Deduct", StockServiceServer.Deduct),
		unaryHandler("Restore", StockServiceServer.Restore),
		unaryHandler("Reserve", StockServiceServer.Reserve),
		unaryHandler("SetQuantity", StockServiceServer.SetQuantity),
	},
	Streams: []grpc.StreamDesc{},
}

// StockServiceClient calls inventory.StockService with the JSON codec.
type StockServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewStockServiceClient(cc grpc.ClientConnInterface) *StockServiceClient {
	return &StockServiceClient{cc: cc}
}

func (c *StockServiceClient) invoke(ctx context.Context, method string, in any, opts ...grpc.CallOption) (*StockReply, error) {
	out := new(StockReply)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+stockServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StockServiceClient) Deduct(ctx context.Context, in *StockAmountRequest, opts ...grpc.CallOption) (*StockReply, error) {
	return c.invoke(ctx, "Deduct", in, opts...)
}

func (c *StockServiceClient) Restore(ctx context.Context, in *StockAmountRequest, opts ...grpc.CallOption) (*StockReply, error) {
	return c.invoke(ctx, "Restore", in, opts...)
}

func (c *StockServiceClient) Reserve(ctx context.Context, in *ReserveRequest, opts ...grpc.CallOption) (*StockReply, error) {
	return c.invoke(ctx, "Reserve", in, opts...)
}

func (c *StockServiceClient) SetQuantity(ctx context.Context, in *SetQuantityRPCRequest, opts ...grpc.CallOption) (*StockReply, error) {
	return c.invoke(ctx, "SetQuantity", in, opts...)
}

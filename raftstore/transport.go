// Copyright 2026 The RangeKV Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package raftstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/rangekv/rangekv/errors"
	"github.com/rangekv/rangekv/proto"
	"go.etcd.io/etcd/raft/v3/raftpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultConnectionTimeoutMs = 100
	defaultBackoffMaxDelayMs   = 5000
	defaultBackoffBaseDelayMs  = 200
	defaultKeepAliveTimeoutS   = 60

	raftMessageMethod = "/rangekv.RaftService/RaftMessage"
)

// AddressResolver maps a store id to the address of the node hosting it.
type AddressResolver interface {
	Resolve(ctx context.Context, storeID proto.StoreID) (string, error)
}

type TransportConfig struct {
	ConnectTimeoutMs   uint32 `json:"connect_timeout_ms"`
	KeepaliveTimeoutS  uint32 `json:"keepalive_timeout_s"`
	BackoffBaseDelayMs uint32 `json:"backoff_base_delay_ms"`
	BackoffMaxDelayMs  uint32 `json:"backoff_max_delay_ms"`

	Resolver AddressResolver `json:"-"`
}

// RaftMessageRequest is one replication message addressed to a region's
// peer on a specific store.
type RaftMessageRequest struct {
	ToStore  proto.StoreID
	RegionID proto.RegionID
	Message  raftpb.Message
}

const raftMessageHeaderSize = 16

func (m *RaftMessageRequest) Marshal() ([]byte, error) {
	body, err := m.Message.Marshal()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, raftMessageHeaderSize+len(body))
	binary.BigEndian.PutUint64(buf[0:8], uint64(m.ToStore))
	binary.BigEndian.PutUint64(buf[8:16], uint64(m.RegionID))
	copy(buf[raftMessageHeaderSize:], body)
	return buf, nil
}

func (m *RaftMessageRequest) Unmarshal(data []byte) error {
	if len(data) < raftMessageHeaderSize {
		return fmt.Errorf("raft message too short: %d bytes", len(data))
	}
	m.ToStore = proto.StoreID(binary.BigEndian.Uint64(data[0:8]))
	m.RegionID = proto.RegionID(binary.BigEndian.Uint64(data[8:16]))
	return m.Message.Unmarshal(data[raftMessageHeaderSize:])
}

type RaftMessageResponse struct{}

func (*RaftMessageResponse) Marshal() ([]byte, error) { return nil, nil }
func (*RaftMessageResponse) Unmarshal(_ []byte) error { return nil }

// raftCodec moves raft requests over grpc without a generated stub; both
// message types marshal themselves.
type raftCodec struct{}

const raftCodecName = "rangekv-raft"

func (raftCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(interface{ Marshal() ([]byte, error) })
	if !ok {
		return nil, fmt.Errorf("raft codec can not marshal %T", v)
	}
	return m.Marshal()
}

func (raftCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(interface{ Unmarshal([]byte) error })
	if !ok {
		return fmt.Errorf("raft codec can not unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

func (raftCodec) Name() string { return raftCodecName }

func init() {
	encoding.RegisterCodec(raftCodec{})
}

// Transport routes raft messages between stores. Messages to a store
// registered on this node are delivered straight into the owning worker's
// mailbox; everything else goes over grpc to the node resolved for the
// target store.
type Transport struct {
	lock     sync.RWMutex
	channels map[proto.StoreID]chan Msg

	resolver AddressResolver
	conns    sync.Map
	cfg      *TransportConfig
}

func NewTransport(cfg *TransportConfig) *Transport {
	initialDefaultConfig(&cfg.ConnectTimeoutMs, defaultConnectionTimeoutMs)
	initialDefaultConfig(&cfg.KeepaliveTimeoutS, defaultKeepAliveTimeoutS)
	initialDefaultConfig(&cfg.BackoffBaseDelayMs, defaultBackoffBaseDelayMs)
	initialDefaultConfig(&cfg.BackoffMaxDelayMs, defaultBackoffMaxDelayMs)

	return &Transport{
		channels: make(map[proto.StoreID]chan Msg),
		resolver: cfg.Resolver,
		cfg:      cfg,
	}
}

// AddChannel registers the mailbox of a store hosted on this node. The
// registration must happen before the owning worker starts, so inbound
// messages never race a half-started store.
func (t *Transport) AddChannel(storeID proto.StoreID, ch chan Msg) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if _, ok := t.channels[storeID]; ok {
		return errors.ErrDuplicateStore
	}
	t.channels[storeID] = ch
	return nil
}

// RemoveChannel unregisters a store's mailbox and returns it. Exactly one
// caller observes ok for a given registration.
func (t *Transport) RemoveChannel(storeID proto.StoreID) (chan Msg, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	ch, ok := t.channels[storeID]
	if ok {
		delete(t.channels, storeID)
	}
	return ch, ok
}

func (t *Transport) channel(storeID proto.StoreID) (chan Msg, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	ch, ok := t.channels[storeID]
	return ch, ok
}

// SendTo delivers one raft message. Local delivery never blocks; a full
// mailbox drops the message and raft retransmits.
func (t *Transport) SendTo(ctx context.Context, req *RaftMessageRequest) error {
	if ch, ok := t.channel(req.ToStore); ok {
		select {
		case ch <- RaftMsg(req):
			return nil
		default:
			return fmt.Errorf("store %d mailbox is full", req.ToStore)
		}
	}

	addr, err := t.resolver.Resolve(ctx, req.ToStore)
	if err != nil {
		return fmt.Errorf("resolve store %d failed: %s", req.ToStore, err)
	}
	conn, err := t.getConnection(ctx, addr)
	if err != nil {
		return err
	}
	resp := RaftMessageResponse{}
	return conn.Invoke(ctx, raftMessageMethod, req, &resp, grpc.CallContentSubtype(raftCodecName))
}

// RaftMessage is the grpc server handler; it hands the request to the
// target store's worker.
func (t *Transport) RaftMessage(ctx context.Context, req *RaftMessageRequest) (*RaftMessageResponse, error) {
	ch, ok := t.channel(req.ToStore)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "store %d is not running on this node", req.ToStore)
	}
	select {
	case ch <- RaftMsg(req):
		return &RaftMessageResponse{}, nil
	default:
		return nil, status.Errorf(codes.ResourceExhausted, "store %d mailbox is full", req.ToStore)
	}
}

// Register exposes the raft service on a grpc server.
func (t *Transport) Register(s *grpc.Server) {
	s.RegisterService(&raftServiceDesc, t)
}

func (t *Transport) Close() {
	t.conns.Range(func(_, value interface{}) bool {
		conn := value.(*connection)
		if conn.ClientConn != nil {
			conn.ClientConn.Close()
		}
		return true
	})
}

func (t *Transport) getConnection(ctx context.Context, target string) (conn *connection, err error) {
	value, loaded := t.conns.Load(target)
	if !loaded {
		value, _ = t.conns.LoadOrStore(target, &connection{})
	}
	conn = value.(*connection)

	if conn.ClientConn == nil {
		conn.once.Do(func() {
			grpcConn, dialErr := grpc.DialContext(ctx, target, generateDialOpts(t.cfg)...)
			if dialErr != nil {
				err = dialErr
				t.conns.Delete(target)
				return
			}
			grpcConn.Connect()
			conn.ClientConn = grpcConn
		})
	}
	return
}

type connection struct {
	*grpc.ClientConn

	once sync.Once
}

var raftServiceDesc = grpc.ServiceDesc{
	ServiceName: "rangekv.RaftService",
	HandlerType: (*raftMessageHandler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RaftMessage",
			Handler:    handleRaftMessage,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raftstore",
}

type raftMessageHandler interface {
	RaftMessage(ctx context.Context, req *RaftMessageRequest) (*RaftMessageResponse, error)
}

func handleRaftMessage(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RaftMessageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftMessageHandler).RaftMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: raftMessageMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftMessageHandler).RaftMessage(ctx, req.(*RaftMessageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// UnaryInterceptorWithTracer binds incoming requests to the caller's trace
// id so replication logs correlate across nodes.
func UnaryInterceptorWithTracer(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if reqID, ok := md[proto.ReqIdKey]; ok && len(reqID) > 0 {
			_, ctx = trace.StartSpanFromContextWithTraceID(ctx, "", reqID[0])
		} else {
			_, ctx = trace.StartSpanFromContext(ctx, "")
		}
	}
	return handler(ctx, req)
}

func generateDialOpts(cfg *TransportConfig) []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(math.MaxInt32),
			grpc.MaxCallRecvMsgSize(math.MaxInt32),
		),
		grpc.WithKeepaliveParams(
			keepalive.ClientParameters{
				Timeout:             time.Duration(cfg.KeepaliveTimeoutS) * time.Second,
				PermitWithoutStream: true,
			},
		),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff: backoff.Config{
				BaseDelay: time.Duration(cfg.BackoffBaseDelayMs) * time.Millisecond,
				MaxDelay:  time.Duration(cfg.BackoffMaxDelayMs) * time.Millisecond,
			},
			MinConnectTimeout: time.Millisecond * time.Duration(cfg.ConnectTimeoutMs),
		}),
		grpc.WithChainUnaryInterceptor(unaryInterceptorWithTracer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
}

func unaryInterceptorWithTracer(ctx context.Context, method string, req, reply interface{},
	cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption,
) error {
	span := trace.SpanFromContextSafe(ctx)
	ctx = metadata.NewOutgoingContext(ctx, metadata.Pairs(
		proto.ReqIdKey, span.TraceID(),
	))
	return invoker(ctx, method, req, reply, cc, opts...)
}

func initialDefaultConfig(value *uint32, defaultValue uint32) {
	if *value == 0 {
		*value = defaultValue
	}
}

package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"vodrive/internal/daemon"
	"vodrive/internal/frames"
	"vodrive/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Vodrive", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file. Connected clients are
// served until they disconnect.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun vodrive stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	*resp = StatusResponse{
		Running:          status.Running,
		PID:              status.PID,
		UptimeSeconds:    status.Uptime.Seconds(),
		Controller:       status.Controller,
		LockPath:         status.LockFilePath,
		TrajectoryDBPath: status.TrajectoryDBPath,
		TrajectoryRun:    status.TrajectoryRun,
		TrajectoryDrops:  status.TrajectoryDrops,
		HTTPAddress:      status.HTTPAddress,
		StreamClients:    status.StreamClients,
	}
	return nil
}

func (s *service) Reset(_ ResetRequest, resp *ResetResponse) error {
	if err := s.daemon.RequestReset(); err != nil {
		return err
	}
	resp.Pending = true
	return nil
}

func (s *service) OnFrame(req OnFrameRequest, resp *OnFrameResponse) error {
	img := frames.Image{Width: req.Width, Height: req.Height, Pix: req.Pix}
	id, err := s.daemon.Feed(s.ctx, img)
	if err != nil {
		return err
	}
	resp.Status = 0
	resp.FrameID = id
	return nil
}

func (s *service) Intrinsics(_ IntrinsicsRequest, resp *IntrinsicsResponse) error {
	intr, err := s.daemon.Controller().Intrinsics()
	if err != nil {
		return err
	}
	resp.Values = [4]float64{intr.FX, intr.FY, intr.CX, intr.CY}
	return nil
}

func (s *service) Resolution(_ ResolutionRequest, resp *ResolutionResponse) error {
	w, h, err := s.daemon.Controller().Resolution()
	if err != nil {
		return err
	}
	resp.Width, resp.Height = w, h
	return nil
}

func (s *service) CurrentPose(_ CurrentPoseRequest, resp *CurrentPoseResponse) error {
	pose, frameID, ok, err := s.daemon.Controller().CurrentPose()
	if err != nil {
		return err
	}
	resp.Available = ok
	if ok {
		resp.FrameID = frameID
		resp.Pose = pose
	}
	return nil
}

func (s *service) KeyFrames(_ KeyFramesRequest, resp *KeyFramesResponse) error {
	keyFrames, err := s.daemon.Controller().KeyFrames()
	if err != nil {
		return err
	}
	resp.KeyFrames = keyFrames
	return nil
}

func (s *service) KeyFrameCount(_ KeyFrameCountRequest, resp *KeyFrameCountResponse) error {
	count, err := s.daemon.Controller().KeyFrameCount()
	if err != nil {
		return err
	}
	resp.Count = count
	return nil
}

func (s *service) CurrentImage(_ CurrentImageRequest, resp *CurrentImageResponse) error {
	img, frameID, ok, err := s.daemon.Controller().CurrentImage()
	if err != nil {
		return err
	}
	resp.Available = ok
	if ok {
		resp.FrameID = frameID
		resp.Width = img.Width
		resp.Height = img.Height
		resp.Pix = img.Pix
	}
	return nil
}

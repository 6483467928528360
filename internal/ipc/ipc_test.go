package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vodrive/internal/controller"
	"vodrive/internal/daemon"
	"vodrive/internal/frames"
	"vodrive/internal/ipc"
	"vodrive/internal/logging"
	"vodrive/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.HTTP.Enabled = false
	logger := logging.NewNop()
	ctrl, err := controller.Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("controller.Init: %v", err)
	}
	d, err := daemon.New(cfg, logger, ctrl, daemon.Dependencies{})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(cfg.Paths.StateDir, "vodrive.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.Controller.State != "uninitialized" {
		t.Fatalf("unexpected status %+v", status)
	}

	intr, err := client.Intrinsics()
	if err != nil {
		t.Fatalf("Intrinsics RPC failed: %v", err)
	}
	if intr.Values[0] <= 0 || intr.Values[1] <= 0 {
		t.Fatalf("unexpected intrinsics %v", intr.Values)
	}
	res, err := client.Resolution()
	if err != nil {
		t.Fatalf("Resolution RPC failed: %v", err)
	}
	if res.Width != testsupport.DefaultWidth || res.Height != testsupport.DefaultHeight {
		t.Fatalf("unexpected resolution %dx%d", res.Width, res.Height)
	}

	pose, err := client.CurrentPose()
	if err != nil {
		t.Fatalf("CurrentPose RPC failed: %v", err)
	}
	if pose.Available {
		t.Fatal("expected no pose before frames")
	}

	img := testsupport.TexturedImage(testsupport.DefaultWidth, testsupport.DefaultHeight)
	for i := 0; i < 12; i++ {
		resp, err := client.OnFrame(img)
		if err != nil {
			t.Fatalf("OnFrame %d: %v", i, err)
		}
		if resp.Status != 0 || resp.FrameID != i {
			t.Fatalf("unexpected OnFrame response %+v", resp)
		}
	}

	pose, err = client.CurrentPose()
	if err != nil {
		t.Fatalf("CurrentPose RPC failed: %v", err)
	}
	if !pose.Available || pose.FrameID != 11 {
		t.Fatalf("unexpected pose %+v", pose)
	}

	kfs, err := client.KeyFrames()
	if err != nil {
		t.Fatalf("KeyFrames RPC failed: %v", err)
	}
	count, err := client.KeyFrameCount()
	if err != nil {
		t.Fatalf("KeyFrameCount RPC failed: %v", err)
	}
	if count.Count != len(kfs.KeyFrames) {
		t.Fatalf("keyframe count %d disagrees with %d keyframes", count.Count, len(kfs.KeyFrames))
	}

	current, err := client.CurrentImage()
	if err != nil {
		t.Fatalf("CurrentImage RPC failed: %v", err)
	}
	if !current.Available || current.FrameID != 11 || len(current.Pix) != current.Width*current.Height {
		t.Fatalf("unexpected current image id=%d %dx%d len=%d", current.FrameID, current.Width, current.Height, len(current.Pix))
	}

	if _, err := client.OnFrame(frames.Image{Width: 4, Height: 4, Pix: []byte{1}}); err == nil {
		t.Fatal("expected invalid frame to be rejected")
	}

	resetResp, err := client.Reset()
	if err != nil {
		t.Fatalf("Reset RPC failed: %v", err)
	}
	if !resetResp.Pending {
		t.Fatal("expected reset to be pending")
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Controller.ResetPending {
		t.Fatal("expected status to report pending reset")
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected Stopped=true")
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

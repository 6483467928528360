package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"vodrive/internal/frames"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[T any](c *Client, method string, req any) (*T, error) {
	var resp T
	if err := c.client.Call("Vodrive."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop playback and release its lock.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Reset requests an engine reset.
func (c *Client) Reset() (*ResetResponse, error) {
	return call[ResetResponse](c, "Reset", ResetRequest{})
}

// OnFrame delivers one live frame.
func (c *Client) OnFrame(img frames.Image) (*OnFrameResponse, error) {
	return call[OnFrameResponse](c, "OnFrame", OnFrameRequest{Width: img.Width, Height: img.Height, Pix: img.Pix})
}

// Intrinsics retrieves [fx, fy, cx, cy] of the rectified camera.
func (c *Client) Intrinsics() (*IntrinsicsResponse, error) {
	return call[IntrinsicsResponse](c, "Intrinsics", IntrinsicsRequest{})
}

// Resolution retrieves the rectified image size.
func (c *Client) Resolution() (*ResolutionResponse, error) {
	return call[ResolutionResponse](c, "Resolution", ResolutionRequest{})
}

// CurrentPose retrieves the latest pose.
func (c *Client) CurrentPose() (*CurrentPoseResponse, error) {
	return call[CurrentPoseResponse](c, "CurrentPose", CurrentPoseRequest{})
}

// KeyFrames retrieves the current keyframe set.
func (c *Client) KeyFrames() (*KeyFramesResponse, error) {
	return call[KeyFramesResponse](c, "KeyFrames", KeyFramesRequest{})
}

// KeyFrameCount retrieves the number of keyframes.
func (c *Client) KeyFrameCount() (*KeyFrameCountResponse, error) {
	return call[KeyFrameCountResponse](c, "KeyFrameCount", KeyFrameCountRequest{})
}

// CurrentImage retrieves the latest processed frame.
func (c *Client) CurrentImage() (*CurrentImageResponse, error) {
	return call[CurrentImageResponse](c, "CurrentImage", CurrentImageRequest{})
}

package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
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

// Status retrieves daemon and pipeline status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call(serviceName+".Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call(serviceName+".Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Flush forces an immediate batch delivery.
func (c *Client) Flush() (*FlushResponse, error) {
	var resp FlushResponse
	if err := c.client.Call(serviceName+".Flush", FlushRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetCapture toggles payload processing.
func (c *Client) SetCapture(enabled bool) (*SetCaptureResponse, error) {
	var resp SetCaptureResponse
	if err := c.client.Call(serviceName+".SetCapture", SetCaptureRequest{Enabled: enabled}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetOutputDir changes the delivery destination directory.
func (c *Client) SetOutputDir(dir string) (*SetOutputDirResponse, error) {
	var resp SetOutputDirResponse
	if err := c.client.Call(serviceName+".SetOutputDir", SetOutputDirRequest{Dir: dir}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Counters retrieves pipeline counters.
func (c *Client) Counters() (*CountersResponse, error) {
	var resp CountersResponse
	if err := c.client.Call(serviceName+".Counters", CountersRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call(serviceName+".LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Dump ships a raw payload snapshot downstream.
func (c *Client) Dump(filename, content string) (*DumpResponse, error) {
	var resp DumpResponse
	if err := c.client.Call(serviceName+".Dump", DumpRequest{Filename: filename, Content: content}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckYtdlp asks the persistence side whether its downloader is available.
func (c *Client) CheckYtdlp() (*CheckYtdlpResponse, error) {
	var resp CheckYtdlpResponse
	if err := c.client.Call(serviceName+".CheckYtdlp", CheckYtdlpRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadVideo forwards a video download request downstream.
func (c *Client) DownloadVideo(tweetURL, directURL, postDate string) (*DownloadVideoResponse, error) {
	var resp DownloadVideoResponse
	req := DownloadVideoRequest{TweetURL: tweetURL, DirectURL: directURL, PostDate: postDate}
	if err := c.client.Call(serviceName+".DownloadVideo", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadStatus polls a previously started download.
func (c *Client) DownloadStatus(downloadID string) (*DownloadStatusResponse, error) {
	var resp DownloadStatusResponse
	if err := c.client.Call(serviceName+".DownloadStatus", DownloadStatusRequest{DownloadID: downloadID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

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

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Trawler.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pause pauses worker pools. An empty pipeline pauses all of them.
func (c *Client) Pause(pipeline string) (*PauseResponse, error) {
	var resp PauseResponse
	if err := c.client.Call("Trawler.Pause", PauseRequest{Pipeline: pipeline}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resume resumes worker pools. An empty pipeline resumes all of them.
func (c *Client) Resume(pipeline string) (*ResumeResponse, error) {
	var resp ResumeResponse
	if err := c.client.Call("Trawler.Resume", ResumeRequest{Pipeline: pipeline}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Scan triggers a discovery scan and waits for its result.
func (c *Client) Scan(force bool) (*ScanResponse, error) {
	var resp ScanResponse
	if err := c.client.Call("Trawler.Scan", ScanRequest{Force: force}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns items filtered by phase and statuses.
func (c *Client) QueueList(req QueueListRequest) (*QueueListResponse, error) {
	var resp QueueListResponse
	if err := c.client.Call("Trawler.QueueList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRetry retries errored items of a phase.
func (c *Client) QueueRetry(phase string, ids []int64) (*QueueRetryResponse, error) {
	var resp QueueRetryResponse
	req := QueueRetryRequest{Phase: phase, IDs: ids}
	if err := c.client.Call("Trawler.QueueRetry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sources lists tracked sources.
func (c *Client) Sources(enabledOnly bool) (*SourcesResponse, error) {
	var resp SourcesResponse
	if err := c.client.Call("Trawler.Sources", SourcesRequest{EnabledOnly: enabledOnly}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SourceEnable toggles a source's participation in scans.
func (c *Client) SourceEnable(externalID string, enabled bool) (*SourceEnableResponse, error) {
	var resp SourceEnableResponse
	req := SourceEnableRequest{ExternalID: externalID, Enabled: enabled}
	if err := c.client.Call("Trawler.SourceEnable", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Trawler.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

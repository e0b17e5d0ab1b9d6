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

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Reelstream.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pause halts new job dequeues; active encodes finish.
func (c *Client) Pause() (*PauseResponse, error) {
	var resp PauseResponse
	if err := c.client.Call("Reelstream.Pause", PauseRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resume re-enables dequeuing after a pause.
func (c *Client) Resume() (*ResumeResponse, error) {
	var resp ResumeResponse
	if err := c.client.Call("Reelstream.Resume", ResumeRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Reelstream.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Reelstream.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns jobs optionally filtered by statuses.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	req := QueueListRequest{Statuses: statuses}
	if err := c.client.Call("Reelstream.QueueList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueDescribe returns details for a single job.
func (c *Client) QueueDescribe(id int64) (*QueueDescribeResponse, error) {
	var resp QueueDescribeResponse
	req := QueueDescribeRequest{ID: id}
	if err := c.client.Call("Reelstream.QueueDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueAdd enqueues a single source file.
func (c *Client) QueueAdd(path, priority string) (*QueueAddResponse, error) {
	var resp QueueAddResponse
	req := QueueAddRequest{Path: path, Priority: priority}
	if err := c.client.Call("Reelstream.QueueAdd", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueScan launches a background library scan.
func (c *Client) QueueScan(mode string) (*QueueScanResponse, error) {
	var resp QueueScanResponse
	req := QueueScanRequest{Mode: mode}
	if err := c.client.Call("Reelstream.QueueScan", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ScanStatus fetches scan tasks. Empty id lists all tasks.
func (c *Client) ScanStatus(id string) (*ScanStatusResponse, error) {
	var resp ScanStatusResponse
	req := ScanStatusRequest{ID: id}
	if err := c.client.Call("Reelstream.ScanStatus", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueMove repositions a queued job.
func (c *Client) QueueMove(id int64, direction string) (*QueueMoveResponse, error) {
	var resp QueueMoveResponse
	req := QueueMoveRequest{ID: id, Direction: direction}
	if err := c.client.Call("Reelstream.QueueMove", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueReorder re-sequences queued jobs into the given order.
func (c *Client) QueueReorder(ids []int64) (*QueueReorderResponse, error) {
	var resp QueueReorderResponse
	req := QueueReorderRequest{IDs: ids}
	if err := c.client.Call("Reelstream.QueueReorder", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRemove deletes jobs by id.
func (c *Client) QueueRemove(ids []int64) (*QueueRemoveResponse, error) {
	var resp QueueRemoveResponse
	req := QueueRemoveRequest{IDs: ids}
	if err := c.client.Call("Reelstream.QueueRemove", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRemoveDuplicates collapses duplicate queued source paths.
func (c *Client) QueueRemoveDuplicates() (*QueueRemoveDuplicatesResponse, error) {
	var resp QueueRemoveDuplicatesResponse
	if err := c.client.Call("Reelstream.QueueRemoveDuplicates", QueueRemoveDuplicatesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueCancel cancels a queued or running job.
func (c *Client) QueueCancel(id int64) (*QueueCancelResponse, error) {
	var resp QueueCancelResponse
	req := QueueCancelRequest{ID: id}
	if err := c.client.Call("Reelstream.QueueCancel", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueReset returns a failed or canceled job to the queue.
func (c *Client) QueueReset(id int64) (*QueueResetResponse, error) {
	var resp QueueResetResponse
	req := QueueResetRequest{ID: id}
	if err := c.client.Call("Reelstream.QueueReset", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClear removes all jobs from the queue.
func (c *Client) QueueClear() (*QueueClearResponse, error) {
	var resp QueueClearResponse
	if err := c.client.Call("Reelstream.QueueClear", QueueClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClearCompleted removes only completed jobs.
func (c *Client) QueueClearCompleted() (*QueueClearCompletedResponse, error) {
	var resp QueueClearCompletedResponse
	if err := c.client.Call("Reelstream.QueueClearCompleted", QueueClearCompletedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClearFailed removes failed jobs.
func (c *Client) QueueClearFailed() (*QueueClearFailedResponse, error) {
	var resp QueueClearFailedResponse
	if err := c.client.Call("Reelstream.QueueClearFailed", QueueClearFailedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cleanup removes a source file's transcoded artifacts.
func (c *Client) Cleanup(path string) (*CleanupResponse, error) {
	var resp CleanupResponse
	req := CleanupRequest{Path: path}
	if err := c.client.Call("Reelstream.Cleanup", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BufferStatus fetches one streaming session's buffering state.
func (c *Client) BufferStatus(sessionKey string) (*BufferStatusResponse, error) {
	var resp BufferStatusResponse
	req := BufferStatusRequest{SessionKey: sessionKey}
	if err := c.client.Call("Reelstream.BufferStatus", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BufferSessions lists active streaming session keys.
func (c *Client) BufferSessions() (*BufferSessionsResponse, error) {
	var resp BufferSessionsResponse
	if err := c.client.Call("Reelstream.BufferSessions", BufferSessionsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Reelstream.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueHealth returns queue diagnostics.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	var resp QueueHealthResponse
	if err := c.client.Call("Reelstream.QueueHealth", QueueHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Reelstream.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Reelstream.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

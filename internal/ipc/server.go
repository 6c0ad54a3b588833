package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"trawler/internal/daemon"
	"trawler/internal/logging"
	"trawler/internal/store"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
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
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Trawler", svc); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve accepts RPC connections until the context is canceled.
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
				s.logger.Warn("accept failed", logging.Error(err))
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

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(req StatusRequest, resp *StatusResponse) error {
	status, err := s.daemon.Status(s.ctx)
	if err != nil {
		return err
	}

	depths := make(map[string]int, len(status.QueueDepths))
	for kind, depth := range status.QueueDepths {
		depths[string(kind)] = depth
	}
	paused := make(map[string]bool, len(status.Paused))
	for kind, p := range status.Paused {
		paused[string(kind)] = p
	}
	*resp = StatusResponse{
		Running:     status.Running,
		Paused:      paused,
		PID:         status.PID,
		StartedAt:   status.StartedAt,
		LockPath:    status.LockPath,
		DBPath:      status.DBPath,
		QueueDepths: depths,
		Active:      status.Active,
		Retrieval:   statusCounts(status.Stats.Retrieval),
		Relay:       statusCounts(status.Stats.Relay),
		TotalItems:  status.Stats.Total,
		LocalSize:   status.LocalSize,
		Sources:     status.Sources,
		Scanner:     status.Scanner,
	}
	return nil
}

func statusCounts(counts map[store.Status]int) map[string]int {
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	return out
}

func (s *service) Pause(req PauseRequest, resp *PauseResponse) error {
	changed, err := s.daemon.Pause(req.Pipeline)
	if err != nil {
		return err
	}
	resp.Changed = changed
	return nil
}

func (s *service) Resume(req ResumeRequest, resp *ResumeResponse) error {
	changed, err := s.daemon.Resume(req.Pipeline)
	if err != nil {
		return err
	}
	resp.Changed = changed
	return nil
}

func (s *service) Scan(req ScanRequest, resp *ScanResponse) error {
	result, err := s.daemon.Scan(s.ctx, req.Force)
	if result != nil {
		resp.Result = *result
	}
	return err
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	items, err := s.listItems(req)
	if err != nil {
		return err
	}
	resp.Items = make([]Item, 0, len(items))
	for _, item := range items {
		resp.Items = append(resp.Items, toDTO(item))
	}
	return nil
}

func (s *service) listItems(req QueueListRequest) ([]*store.Item, error) {
	st := s.daemon.Store()
	if req.Phase == "" {
		limit := req.Limit
		if limit <= 0 {
			limit = 50
		}
		return st.ListRecent(s.ctx, limit)
	}

	phase, err := parsePhase(req.Phase)
	if err != nil {
		return nil, err
	}
	statuses := make([]store.Status, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		statuses = append(statuses, store.Status(raw))
	}
	if len(statuses) == 0 {
		statuses = []store.Status{store.StatusPending, store.StatusInProgress, store.StatusError}
	}
	return st.ListByStatus(s.ctx, phase, statuses...)
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	phase, err := parsePhase(req.Phase)
	if err != nil {
		return err
	}
	updated, err := s.daemon.RetryItems(s.ctx, phase, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	return nil
}

func (s *service) Sources(req SourcesRequest, resp *SourcesResponse) error {
	sources, err := s.daemon.Store().ListSources(s.ctx, req.EnabledOnly)
	if err != nil {
		return err
	}
	resp.Sources = make([]SourceInfo, 0, len(sources))
	for _, src := range sources {
		resp.Sources = append(resp.Sources, SourceInfo{
			ExternalID:    src.ExternalID,
			Name:          src.Name,
			Enabled:       src.Enabled,
			LastSeenItem:  src.LastSeenItemID,
			LastScannedAt: src.LastScannedAt,
		})
	}
	return nil
}

func (s *service) SourceEnable(req SourceEnableRequest, resp *SourceEnableResponse) error {
	if req.ExternalID == "" {
		return errors.New("source external id required")
	}
	if err := s.daemon.SetSourceEnabled(s.ctx, req.ExternalID, req.Enabled); err != nil {
		return err
	}
	resp.Updated = true
	return nil
}

func (s *service) TestNotification(req TestNotificationRequest, resp *TestNotificationResponse) error {
	if err := s.daemon.Notifier().TestNotification(s.ctx); err != nil {
		resp.Sent = false
		resp.Message = err.Error()
		return nil
	}
	resp.Sent = true
	resp.Message = "notification sent"
	return nil
}

func parsePhase(raw string) (store.Phase, error) {
	switch store.Phase(raw) {
	case store.PhaseRetrieval:
		return store.PhaseRetrieval, nil
	case store.PhaseRelay:
		return store.PhaseRelay, nil
	default:
		return "", fmt.Errorf("unknown phase %q", raw)
	}
}

func toDTO(item *store.Item) Item {
	return Item{
		ID:                item.ID,
		ExternalID:        item.ExternalID,
		Title:             item.Title,
		Source:            item.Source,
		Duration:          item.Duration,
		RetrievalStatus:   string(item.RetrievalStatus),
		RetrievalAttempts: item.RetrievalAttempts,
		RetrievalError:    item.RetrievalError,
		LocalPath:         item.LocalPath,
		LocalSize:         item.LocalSize,
		RelayStatus:       string(item.RelayStatus),
		RelayAttempts:     item.RelayAttempts,
		RelayError:        item.RelayError,
		RemoteRef:         item.RemoteRef,
		CreatedAt:         item.CreatedAt,
		RetrievedAt:       item.RetrievedAt,
		RelayedAt:         item.RelayedAt,
	}
}

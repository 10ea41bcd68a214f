package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/gitcollect/internal/collect"
)

const (
	shutdownTimeoutConstant                  = 5 * time.Second
	writeWaitConstant                        = 10 * time.Second
	parentDirectoryConstant                  = ".."
	defaultAgentRunRootConstant              = ".gitcollect/runs"
	workspaceResolutionErrorTemplateConstant = "unable to resolve agent workspace %s: %w"
	upgradeFailedMessageConstant             = "websocket upgrade failed"
	connectionOpenedMessageConstant          = "coordinator connected"
	connectionClosedMessageConstant          = "coordinator disconnected"
	invalidMessageMessageConstant            = "invalid message"
	scanStartedMessageConstant               = "scan started"
	scanFailedMessageConstant                = "scan failed"
	scanCompletedMessageConstant             = "scan completed"
	scanCancelledMessageConstant             = "scan cancellation requested"
	sendFailedMessageConstant                = "unable to send message"
	agentListeningMessageConstant            = "agent listening"
	logFieldRemoteAddressConstant            = "remote_address"
	logFieldRequestIDConstant                = "request_id"
	logFieldPathConstant                     = "path"
	logFieldMessageTypeConstant              = "message_type"
	logFieldListenAddressConstant            = "listen_address"
	logFieldWorkspaceConstant                = "workspace"
	logFieldErrorKindConstant                = "error_kind"
	unknownMessageTypeTemplateConstant       = "unknown message type %q"
	changelogAttachFailedMessageConstant     = "changelog could not be attached to the scan result"
)

var (
	// ErrPathOutsideWorkspace indicates a request path escaping the agent workspace.
	ErrPathOutsideWorkspace = errors.New("path is outside the agent workspace")
	// ErrScannerRequired indicates a server constructed without a scanner.
	ErrScannerRequired = errors.New("agent scanner required")
)

// Server answers scan requests from coordinators over websocket connections.
type Server struct {
	logger        *zap.Logger
	scanner       collect.Scanner
	workspaceRoot string
	upgrader      websocket.Upgrader

	connectionsMutex sync.Mutex
	connections      map[*websocket.Conn]struct{}
}

// NewServer constructs a Server scanning repositories inside workspaceRoot.
func NewServer(logger *zap.Logger, scanner collect.Scanner, workspaceRoot string) (*Server, error) {
	if scanner == nil {
		return nil, ErrScannerRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	absoluteRoot, absoluteError := filepath.Abs(workspaceRoot)
	if absoluteError != nil {
		return nil, fmt.Errorf(workspaceResolutionErrorTemplateConstant, workspaceRoot, absoluteError)
	}
	return &Server{
		logger:        logger,
		scanner:       scanner,
		workspaceRoot: absoluteRoot,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(request *http.Request) bool { return true },
		},
		connections: make(map[*websocket.Conn]struct{}),
	}, nil
}

// ListenAndServe serves on address until executionContext is cancelled.
func (server *Server) ListenAndServe(executionContext context.Context, address string) error {
	httpServer := &http.Server{Addr: address, Handler: server}
	group, groupContext := errgroup.WithContext(executionContext)

	group.Go(func() error {
		server.logger.Info(agentListeningMessageConstant, zap.String(logFieldListenAddressConstant, address), zap.String(logFieldWorkspaceConstant, server.workspaceRoot))
		if serveError := httpServer.ListenAndServe(); serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
			return serveError
		}
		return nil
	})
	group.Go(func() error {
		<-groupContext.Done()
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeoutConstant)
		defer cancel()
		shutdownError := httpServer.Shutdown(shutdownContext)
		server.closeConnections()
		return shutdownError
	})

	return group.Wait()
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (server *Server) ServeHTTP(responseWriter http.ResponseWriter, request *http.Request) {
	connection, upgradeError := server.upgrader.Upgrade(responseWriter, request, nil)
	if upgradeError != nil {
		server.logger.Warn(upgradeFailedMessageConstant, zap.Error(upgradeError))
		return
	}
	server.trackConnection(connection)
	defer server.untrackConnection(connection)

	logger := server.logger.With(zap.String(logFieldRemoteAddressConstant, request.RemoteAddr))
	logger.Info(connectionOpenedMessageConstant)
	newSession(server, connection, logger).serve()
	logger.Info(connectionClosedMessageConstant)
}

// confine resolves the request paths inside the workspace.
func (server *Server) confine(request collect.ScanRequest) (collect.ScanRequest, error) {
	confined := request
	confined.WorkspaceRoot = server.workspaceRoot
	repositoryPath, pathError := server.resolveInsideWorkspace(request.Path)
	if pathError != nil {
		return collect.ScanRequest{}, collect.OperationError{Kind: collect.ErrorKindPathNotFound, Subject: request.Path, Cause: pathError}
	}
	confined.Path = repositoryPath

	runRoot := request.RunRootDirectory
	if len(strings.TrimSpace(runRoot)) == 0 {
		runRoot = defaultAgentRunRootConstant
	}
	runRootDirectory, runRootError := server.resolveInsideWorkspace(runRoot)
	if runRootError != nil {
		runRootDirectory = filepath.Join(server.workspaceRoot, defaultAgentRunRootConstant, filepath.Base(filepath.Clean(runRoot)))
	}
	confined.RunRootDirectory = runRootDirectory
	return confined, nil
}

func (server *Server) resolveInsideWorkspace(candidate string) (string, error) {
	resolved := candidate
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(server.workspaceRoot, resolved)
	}
	resolved = filepath.Clean(resolved)

	relative, relativeError := filepath.Rel(server.workspaceRoot, resolved)
	if relativeError != nil {
		return "", ErrPathOutsideWorkspace
	}
	if relative == parentDirectoryConstant || strings.HasPrefix(relative, parentDirectoryConstant+string(filepath.Separator)) {
		return "", ErrPathOutsideWorkspace
	}
	return resolved, nil
}

func (server *Server) trackConnection(connection *websocket.Conn) {
	server.connectionsMutex.Lock()
	defer server.connectionsMutex.Unlock()
	server.connections[connection] = struct{}{}
}

func (server *Server) untrackConnection(connection *websocket.Conn) {
	server.connectionsMutex.Lock()
	defer server.connectionsMutex.Unlock()
	delete(server.connections, connection)
}

func (server *Server) closeConnections() {
	server.connectionsMutex.Lock()
	defer server.connectionsMutex.Unlock()
	for connection := range server.connections {
		connection.Close()
	}
}

// session serves one coordinator connection. Writes are serialized; each scan runs in its own goroutine.
type session struct {
	server     *Server
	connection *websocket.Conn
	logger     *zap.Logger

	writeMutex sync.Mutex

	requestsMutex sync.Mutex
	requests      map[string]context.CancelFunc
	inFlight      sync.WaitGroup
}

func newSession(server *Server, connection *websocket.Conn, logger *zap.Logger) *session {
	return &session{
		server:     server,
		connection: connection,
		logger:     logger,
		requests:   make(map[string]context.CancelFunc),
	}
}

func (session *session) serve() {
	sessionContext, cancelSession := context.WithCancel(context.Background())
	defer func() {
		cancelSession()
		session.inFlight.Wait()
		session.connection.Close()
	}()

	for {
		_, payload, readError := session.connection.ReadMessage()
		if readError != nil {
			return
		}

		var envelope EnvelopeRaw
		if decodeError := json.Unmarshal(payload, &envelope); decodeError != nil {
			session.logger.Warn(invalidMessageMessageConstant, zap.Error(decodeError))
			continue
		}

		switch envelope.Type {
		case TypeScan:
			var scan ScanMessage
			if decodeError := json.Unmarshal(envelope.Payload, &scan); decodeError != nil {
				session.logger.Warn(invalidMessageMessageConstant, zap.String(logFieldMessageTypeConstant, envelope.Type), zap.Error(decodeError))
				continue
			}
			session.startScan(sessionContext, scan)
		case TypeCancel:
			var cancel CancelMessage
			if decodeError := json.Unmarshal(envelope.Payload, &cancel); decodeError != nil {
				session.logger.Warn(invalidMessageMessageConstant, zap.String(logFieldMessageTypeConstant, envelope.Type), zap.Error(decodeError))
				continue
			}
			session.cancel(cancel.RequestID)
		case TypePing:
			session.send(TypePong, nil)
		default:
			session.logger.Warn(invalidMessageMessageConstant, zap.Error(fmt.Errorf(unknownMessageTypeTemplateConstant, envelope.Type)))
		}
	}
}

func (session *session) startScan(sessionContext context.Context, scan ScanMessage) {
	requestContext, cancel := context.WithCancel(sessionContext)
	session.requestsMutex.Lock()
	session.requests[scan.RequestID] = cancel
	session.requestsMutex.Unlock()

	session.inFlight.Add(1)
	go func() {
		defer session.inFlight.Done()
		defer session.untrack(scan.RequestID)
		session.runScan(requestContext, scan)
	}()
}

func (session *session) runScan(requestContext context.Context, scan ScanMessage) {
	logger := session.logger.With(zap.String(logFieldRequestIDConstant, scan.RequestID))
	request, confineError := session.server.confine(scan.Request)
	if confineError != nil {
		session.reportFailure(logger, scan.RequestID, confineError)
		return
	}

	logger.Info(scanStartedMessageConstant, zap.String(logFieldPathConstant, request.Path))
	result, scanError := session.server.scanner.Scan(requestContext, request)
	if scanError != nil {
		session.reportFailure(logger, scan.RequestID, scanError)
		return
	}
	logger.Info(scanCompletedMessageConstant, zap.String(logFieldPathConstant, request.Path))
	session.send(TypeResult, ResultMessage{RequestID: scan.RequestID, Result: attachChangelog(logger, result)})
}

// attachChangelog embeds the changelog file in the result so the coordinator can keep its own copy.
func attachChangelog(logger *zap.Logger, result collect.ScanResult) collect.ScanResult {
	if len(result.ChangelogPath) == 0 {
		return result
	}
	content, readError := os.ReadFile(result.ChangelogPath)
	if readError != nil {
		logger.Warn(changelogAttachFailedMessageConstant, zap.Error(collect.OperationError{Kind: collect.ErrorKindChangelogGeneration, Subject: result.ChangelogPath, Cause: readError}))
		result.ChangelogPath = ""
		return result
	}
	result.ChangelogContent = content
	return result
}

func (session *session) reportFailure(logger *zap.Logger, requestID string, failure error) {
	message := NewErrorMessage(requestID, failure)
	logger.Warn(scanFailedMessageConstant, zap.String(logFieldErrorKindConstant, message.Kind), zap.Error(failure))
	session.send(TypeError, message)
}

func (session *session) cancel(requestID string) {
	session.requestsMutex.Lock()
	cancel, found := session.requests[requestID]
	session.requestsMutex.Unlock()
	if found {
		session.logger.Info(scanCancelledMessageConstant, zap.String(logFieldRequestIDConstant, requestID))
		cancel()
	}
}

func (session *session) untrack(requestID string) {
	session.requestsMutex.Lock()
	cancel, found := session.requests[requestID]
	delete(session.requests, requestID)
	session.requestsMutex.Unlock()
	if found {
		cancel()
	}
}

func (session *session) send(messageType string, payload any) {
	data, marshalError := MarshalEnvelope(messageType, payload)
	if marshalError != nil {
		session.logger.Warn(sendFailedMessageConstant, zap.String(logFieldMessageTypeConstant, messageType), zap.Error(marshalError))
		return
	}

	session.writeMutex.Lock()
	defer session.writeMutex.Unlock()
	session.connection.SetWriteDeadline(time.Now().Add(writeWaitConstant))
	if writeError := session.connection.WriteMessage(websocket.TextMessage, data); writeError != nil {
		session.logger.Warn(sendFailedMessageConstant, zap.String(logFieldMessageTypeConstant, messageType), zap.Error(writeError))
	}
}

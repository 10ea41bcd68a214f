package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/temirov/gitcollect/internal/collect"
)

const (
	dialErrorTemplateConstant          = "unable to connect to agent %s: %w"
	sendErrorTemplateConstant          = "unable to send %s to agent: %w"
	connectionLostTemplateConstant     = "%w: %v"
	scanDispatchedMessageConstant      = "scan dispatched to agent"
	unexpectedResponseMessageConstant  = "response for unknown request"
	cancelSendFailedMessageConstant    = "unable to send cancellation to agent"
	logFieldAgentURLConstant           = "agent_url"
	closeMessageDeadlineConstant       = time.Second
	responseChannelCapacityConstant    = 1
	pongChannelCapacityConstant        = 1
	normalClosureReasonConstant        = "coordinator finished"
	invalidResponseMessageConstant     = "invalid agent message"
	scanResultReceivedMessageConstant  = "scan result received"
	logFieldSCMNameConstant            = "scm_name"
	logFieldChangelogPathConstant      = "changelog_path"
	logFieldRequestedPathConstant      = "requested_path"
	logFieldAgentErrorCauseConstant    = "cause"
	agentErrorReceivedMessageConstant  = "agent reported failure"
	logFieldAgentErrorKindConstant     = "kind"
	logFieldAgentErrorSubjectConstant  = "subject"
	logFieldAgentChangelogPathConstant = "agent_changelog_path"
	changelogCopiedMessageConstant     = "changelog copied from agent"
	defaultCoordinatorRunRootConstant  = "gitcollect"
)

// ErrConnectionClosed indicates the agent connection ended before a response arrived.
var ErrConnectionClosed = errors.New("agent connection closed")

type response struct {
	result  *ResultMessage
	failure *ErrorMessage
}

// Client is a collect.Scanner that delegates scans to a remote agent.
type Client struct {
	logger     *zap.Logger
	connection *websocket.Conn
	changelogs collect.ChangelogGenerator

	writeMutex sync.Mutex

	pendingMutex sync.Mutex
	pending      map[string]chan response

	pongs     chan struct{}
	done      chan struct{}
	readError error
	closeOnce sync.Once
}

// Dial connects to the agent at agentURL.
func Dial(executionContext context.Context, agentURL string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	connection, _, dialError := websocket.DefaultDialer.DialContext(executionContext, agentURL, nil)
	if dialError != nil {
		return nil, fmt.Errorf(dialErrorTemplateConstant, agentURL, dialError)
	}

	client := &Client{
		logger:     logger.With(zap.String(logFieldAgentURLConstant, agentURL)),
		connection: connection,
		changelogs: collect.NewChangelogGenerator(logger, nil),
		pending:    make(map[string]chan response),
		pongs:      make(chan struct{}, pongChannelCapacityConstant),
		done:       make(chan struct{}),
	}
	go client.readLoop()
	return client, nil
}

// DialScanner adapts Dial to collect.RemoteScannerProvider.
func DialScanner(executionContext context.Context, agentURL string, logger *zap.Logger) (collect.Scanner, error) {
	client, dialError := Dial(executionContext, agentURL, logger)
	if dialError != nil {
		return nil, dialError
	}
	return client, nil
}

// Scan sends request to the agent and waits for its answer. Cancelling executionContext cancels the remote scan
// and returns the context error.
func (client *Client) Scan(executionContext context.Context, request collect.ScanRequest) (collect.ScanResult, error) {
	requestID := uuid.NewString()
	responses := make(chan response, responseChannelCapacityConstant)
	client.pendingMutex.Lock()
	client.pending[requestID] = responses
	client.pendingMutex.Unlock()
	defer client.forget(requestID)

	if sendError := client.send(TypeScan, ScanMessage{RequestID: requestID, Request: request}); sendError != nil {
		return collect.ScanResult{}, sendError
	}
	client.logger.Debug(scanDispatchedMessageConstant, zap.String(logFieldRequestIDConstant, requestID), zap.String(logFieldRequestedPathConstant, request.Path))

	select {
	case received := <-responses:
		if received.failure != nil {
			client.logger.Debug(
				agentErrorReceivedMessageConstant,
				zap.String(logFieldRequestIDConstant, requestID),
				zap.String(logFieldAgentErrorKindConstant, received.failure.Kind),
				zap.String(logFieldAgentErrorSubjectConstant, received.failure.Subject),
				zap.String(logFieldAgentErrorCauseConstant, received.failure.Cause),
			)
			return collect.ScanResult{}, received.failure.Err()
		}
		client.logger.Debug(
			scanResultReceivedMessageConstant,
			zap.String(logFieldRequestIDConstant, requestID),
			zap.String(logFieldSCMNameConstant, received.result.Result.Snapshot.SCMName),
			zap.String(logFieldChangelogPathConstant, received.result.Result.ChangelogPath),
		)
		return client.localizeChangelog(executionContext, request, received.result.Result), nil
	case <-executionContext.Done():
		if cancelError := client.send(TypeCancel, CancelMessage{RequestID: requestID}); cancelError != nil {
			client.logger.Warn(cancelSendFailedMessageConstant, zap.String(logFieldRequestIDConstant, requestID), zap.Error(cancelError))
		}
		return collect.ScanResult{}, executionContext.Err()
	case <-client.done:
		return collect.ScanResult{}, client.connectionError()
	}
}

// localizeChangelog copies the changelog the agent attached into the coordinator's run root, so that notifiers
// read a file that exists on this machine.
func (client *Client) localizeChangelog(executionContext context.Context, request collect.ScanRequest, result collect.ScanResult) collect.ScanResult {
	content := result.ChangelogContent
	agentPath := result.ChangelogPath
	result.ChangelogContent = nil
	result.ChangelogPath = ""
	if len(agentPath) == 0 {
		return result
	}

	runRootDirectory := request.RunRootDirectory
	if len(runRootDirectory) == 0 {
		runRootDirectory = filepath.Join(os.TempDir(), defaultCoordinatorRunRootConstant)
	} else if !filepath.IsAbs(runRootDirectory) && len(request.WorkspaceRoot) > 0 {
		runRootDirectory = filepath.Join(request.WorkspaceRoot, runRootDirectory)
	}

	result.ChangelogPath = client.changelogs.Copy(executionContext, runRootDirectory, content)
	client.logger.Debug(changelogCopiedMessageConstant, zap.String(logFieldAgentChangelogPathConstant, agentPath), zap.String(logFieldChangelogPathConstant, result.ChangelogPath))
	return result
}

// Ping checks that the agent answers.
func (client *Client) Ping(executionContext context.Context) error {
	if sendError := client.send(TypePing, nil); sendError != nil {
		return sendError
	}
	select {
	case <-client.pongs:
		return nil
	case <-executionContext.Done():
		return executionContext.Err()
	case <-client.done:
		return client.connectionError()
	}
}

// Close ends the connection.
func (client *Client) Close() error {
	var closeError error
	client.closeOnce.Do(func() {
		client.writeMutex.Lock()
		client.connection.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, normalClosureReasonConstant),
			time.Now().Add(closeMessageDeadlineConstant),
		)
		client.writeMutex.Unlock()
		closeError = client.connection.Close()
		<-client.done
	})
	return closeError
}

func (client *Client) readLoop() {
	defer close(client.done)
	for {
		_, payload, readError := client.connection.ReadMessage()
		if readError != nil {
			client.readError = readError
			return
		}

		var envelope EnvelopeRaw
		if decodeError := json.Unmarshal(payload, &envelope); decodeError != nil {
			client.logger.Warn(invalidResponseMessageConstant, zap.Error(decodeError))
			continue
		}

		switch envelope.Type {
		case TypeResult:
			var result ResultMessage
			if decodeError := json.Unmarshal(envelope.Payload, &result); decodeError != nil {
				client.logger.Warn(invalidResponseMessageConstant, zap.String(logFieldMessageTypeConstant, envelope.Type), zap.Error(decodeError))
				continue
			}
			client.deliver(result.RequestID, response{result: &result})
		case TypeError:
			var failure ErrorMessage
			if decodeError := json.Unmarshal(envelope.Payload, &failure); decodeError != nil {
				client.logger.Warn(invalidResponseMessageConstant, zap.String(logFieldMessageTypeConstant, envelope.Type), zap.Error(decodeError))
				continue
			}
			client.deliver(failure.RequestID, response{failure: &failure})
		case TypePong:
			select {
			case client.pongs <- struct{}{}:
			default:
			}
		}
	}
}

func (client *Client) deliver(requestID string, received response) {
	client.pendingMutex.Lock()
	responses, found := client.pending[requestID]
	client.pendingMutex.Unlock()
	if !found {
		client.logger.Debug(unexpectedResponseMessageConstant, zap.String(logFieldRequestIDConstant, requestID))
		return
	}
	select {
	case responses <- received:
	default:
	}
}

func (client *Client) forget(requestID string) {
	client.pendingMutex.Lock()
	defer client.pendingMutex.Unlock()
	delete(client.pending, requestID)
}

func (client *Client) send(messageType string, payload any) error {
	data, marshalError := MarshalEnvelope(messageType, payload)
	if marshalError != nil {
		return fmt.Errorf(sendErrorTemplateConstant, messageType, marshalError)
	}
	client.writeMutex.Lock()
	defer client.writeMutex.Unlock()
	client.connection.SetWriteDeadline(time.Now().Add(writeWaitConstant))
	if writeError := client.connection.WriteMessage(websocket.TextMessage, data); writeError != nil {
		return fmt.Errorf(sendErrorTemplateConstant, messageType, writeError)
	}
	return nil
}

// connectionError is valid once done is closed.
func (client *Client) connectionError() error {
	return fmt.Errorf(connectionLostTemplateConstant, ErrConnectionClosed, client.readError)
}

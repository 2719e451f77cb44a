package handler

// wshandler is code for handling websockets for subscriptions.  It supports both commonly used WS protocols
// * subscriptions-transport-ws: early protocol from Apollo for subscriptions (sub-protocol name:graphql-ws)
// * graphql-ws is newer ws transport which can handle query/mutation/subscription (sub-protocol name:graphql-transport-ws).

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/dolmen-go/jsonmap"
	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

const (
	protocolOld = "graphql-ws"
	protocolNew = "graphql-transport-ws"

	// Close codes used by the graphql-transport-ws protocol (also used for the old protocol)
	closeBadRequest    = 4400
	closeUnauthorized  = 4401
	closeInitTimeout   = 4408
	closeDuplicateID   = 4409
	closeTooManyInits  = 4429
	closeWriteDeadline = time.Second
)

type (
	wsConnection struct {
		*websocket.Conn // handle for WS communications

		h   *Handler // we need this for the schema etc
		log *zap.Logger

		newProtocol bool // default to old

		writeMu sync.Mutex // only one go routine may write to the websocket at a time

		// cancelSubscription keeps track of the cancel function associated with each operation.
		//  map key = ID that identifies the operation
		//  map value = context.CancelFunc that will terminate the operation (ie kill all subscription processing)
		cancelMu           sync.Mutex
		cancelSubscription map[string]context.CancelFunc

		wg sync.WaitGroup // tracks subscription go routines
	}

	// wsMessage is a message received from (or sent to) the client
	wsMessage struct {
		Type    string          `json:"type"`
		ID      string          `json:"id,omitempty"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}

	// wsRequest is the payload of a "start" (old protocol) or "subscribe" (new protocol) message
	wsRequest struct {
		OperationName string                 `json:"operationName,omitempty"`
		Query         string                 `json:"query"`
		Variables     map[string]interface{} `json:"variables,omitempty"`
		Extensions    map[string]interface{} `json:"extensions,omitempty"`
	}

	// wsReply is a message sent to the client
	wsReply struct {
		Type    string      `json:"type"`
		ID      string      `json:"id,omitempty"`
		Payload interface{} `json:"payload,omitempty"`
	}
)

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(r *http.Request) bool { return true },
	Subprotocols: []string{protocolOld, protocolNew},
}

// serveWS is called in response to a GraphQL HTTP request wanting to upgrade to a WS.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// nothing else required here as w's HTTP status has already been set
		h.logger.Debug("websocket upgrade error", zap.Error(err))
		return
	}
	c := &wsConnection{
		Conn:               conn,
		h:                  h,
		log:                h.logger.With(zap.String("remote", r.RemoteAddr)),
		newProtocol:        conn.Subprotocol() == protocolNew,
		cancelSubscription: make(map[string]context.CancelFunc, 1),
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		c.wg.Wait()
		if err := c.Close(); err != nil {
			c.log.Debug("websocket close error", zap.Error(err))
		}
	}()

	if !c.init() {
		return
	}
	c.wg.Add(1)
	go c.keepAlive(ctx)

	for {
		message, err := c.read()
		if err != nil {
			c.log.Debug("websocket read error", zap.Error(err))
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.closeWith(closeBadRequest, "Invalid message")
			}
			return
		}

		switch message.Type {
		case "start", "subscribe":
			if (message.Type == "subscribe") != c.newProtocol {
				c.closeWith(closeBadRequest, "Unexpected message type "+message.Type)
				return
			}
			if !c.start(ctx, message) {
				return
			}

		case "stop", "complete":
			c.stop(message.ID)

		case "ping":
			c.send(wsReply{Type: "pong"})

		case "pong":
			// nothing needed

		case "connection_init":
			c.closeWith(closeTooManyInits, "Too many initialisation requests")
			return

		case "connection_terminate":
			c.closeWith(websocket.CloseNormalClosure, "")
			return

		default:
			c.closeWith(closeBadRequest, "Unexpected message type "+message.Type)
			return
		}
	}
}

// init handles the initial (high level) handshake by receiving an "init" message and sending an "ack"
func (c *wsConnection) init() bool {
	_ = c.SetReadDeadline(time.Now().Add(c.h.initialTimeout))
	message, err := c.read()
	_ = c.SetReadDeadline(time.Time{})
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.closeWith(closeInitTimeout, "Connection initialisation timeout")
		} else {
			c.closeWith(closeBadRequest, "Invalid message")
		}
		return false
	}

	switch message.Type {
	case "connection_init":
	case "connection_terminate":
		c.closeWith(websocket.CloseNormalClosure, "")
		return false
	default:
		if c.newProtocol {
			c.closeWith(closeUnauthorized, "Unauthorized")
		} else {
			c.send(wsReply{Type: "connection_error", Payload: map[string]string{"message": "expected connection_init"}})
			c.closeWith(closeBadRequest, "Expected connection_init")
		}
		return false
	}

	if err := c.send(wsReply{Type: "connection_ack"}); err != nil {
		return false
	}
	if !c.newProtocol {
		_ = c.send(wsReply{Type: "ka"})
	}
	return true
}

// keepAlive periodically sends a "ka" message (old protocol) or a "ping" (new protocol) until ctx is done
func (c *wsConnection) keepAlive(ctx context.Context) {
	defer c.wg.Done()
	messageType := "ka"
	if c.newProtocol {
		messageType = "ping"
	}
	ticker := time.NewTicker(c.h.pingFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.send(wsReply{Type: messageType}); err != nil {
				return
			}
		}
	}
}

// start runs an operation.  A subscription streams results until the resolver's channel is closed or it is
// stopped; a query or mutation (new protocol only) sends a single result.
// It returns false if the connection has been closed due to a protocol error.
func (c *wsConnection) start(ctx context.Context, message *wsMessage) bool {
	if message.ID == "" || len(message.Payload) == 0 {
		c.closeWith(websocket.CloseInvalidFramePayloadData, "Missing id or payload")
		return false
	}
	var request wsRequest
	decoder := json.NewDecoder(bytes.NewReader(message.Payload))
	decoder.UseNumber() // allows us to distinguish ints from floats in Variables map (see also FixNumberVariables())
	if err := decoder.Decode(&request); err != nil {
		c.closeWith(closeBadRequest, "Invalid payload")
		return false
	}
	if err := FixNumberVariables(request.Variables); err != nil {
		c.closeWith(closeBadRequest, "Invalid variables")
		return false
	}

	c.cancelMu.Lock()
	if _, ok := c.cancelSubscription[message.ID]; ok {
		c.cancelMu.Unlock()
		c.closeWith(closeDuplicateID, "Subscriber for "+message.ID+" already exists")
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancelSubscription[message.ID] = cancel
	c.cancelMu.Unlock()

	doc, errs := gqlparser.LoadQuery(c.h.schema, request.Query)
	if errs != nil {
		c.fail(message.ID, c.h.format(errs))
		return true
	}
	operation, err := selectOperation(doc, request.OperationName)
	if err != nil {
		c.fail(message.ID, c.h.format(gqlerror.List{err}))
		return true
	}

	if operation.Operation != ast.Subscription {
		result := c.h.run(ctx, operation, request.Variables)
		c.send(wsReply{Type: c.dataType(), ID: message.ID, Payload: result})
		c.complete(message.ID)
		return true
	}

	op, err := c.h.newOperation(operation, request.Variables)
	if err != nil {
		c.fail(message.ID, c.h.format(gqlerror.List{err}))
		return true
	}
	data := c.h.subscriptionData
	if data == nil {
		c.fail(message.ID, c.h.format(gqlerror.List{gqlerror.Errorf("no resolvers for subscription")}))
		return true
	}
	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	for _, s := range operation.SelectionSet {
		astField, ok := s.(*ast.Field)
		if !ok || astField.Name == "__typename" {
			continue
		}
		ch := op.FindSelection(ctx, astField, v)
		if ch == nil {
			continue
		}
		value, ok := <-ch
		if !ok {
			continue // excluded by directive
		}
		if value.err != nil {
			c.fail(message.ID, c.h.format(gqlerror.List{toGQLError(value.err)}))
			return true
		}
		stream, ok := value.value.(reflect.Value)
		if !ok || stream.Kind() != reflect.Chan {
			c.fail(message.ID, c.h.format(gqlerror.List{gqlerror.Errorf("field %q is not a stream", astField.Name)}))
			return true
		}
		c.wg.Add(1)
		go c.process(ctx, op, message.ID, astField, stream)
	}
	return true
}

// process sends each value received from a subscription resolver's channel to the client
func (c *wsConnection) process(ctx context.Context, op *gqlOperation, id string, astField *ast.Field, stream reflect.Value) {
	defer c.wg.Done()
	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: stream},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
	}
	for {
		chosen, v, ok := reflect.Select(cases)
		if chosen == 1 {
			return // stopped (or connection closed)
		}
		if !ok {
			c.complete(id) // resolver closed its channel
			return
		}
		value, err := op.resolveValue(ctx, astField, v)
		if err != nil {
			c.fail(id, c.h.format(gqlerror.List{toGQLError(withPath(ast.PathName(astField.Alias), err))}))
			return
		}
		result := gqlResult{Data: jsonmap.Ordered{
			Data:  map[string]interface{}{astField.Alias: value},
			Order: []string{astField.Alias},
		}}
		if err := c.send(wsReply{Type: c.dataType(), ID: id, Payload: result}); err != nil {
			return
		}
	}
}

// stop kills processing of one operation (eg subscription) by calling the cancel function of the operation's context
func (c *wsConnection) stop(id string) {
	c.cancelMu.Lock()
	cancel := c.cancelSubscription[id]
	c.cancelMu.Unlock()
	if cancel == nil {
		c.log.Debug("websocket ID not found or already cancelled", zap.String("id", id))
		return
	}
	c.complete(id)
}

// complete ends an operation (if still active) and tells the client
func (c *wsConnection) complete(id string) {
	c.cancelMu.Lock()
	cancel := c.cancelSubscription[id]
	c.cancelSubscription[id] = nil // remember that it's been cancelled (ID cannot be reused)
	c.cancelMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	_ = c.send(wsReply{Type: "complete", ID: id})
}

// fail sends errors for an operation then ends it
func (c *wsConnection) fail(id string, errs gqlerror.List) {
	_ = c.send(wsReply{Type: "error", ID: id, Payload: errs})
	c.cancelMu.Lock()
	if cancel := c.cancelSubscription[id]; cancel != nil {
		cancel()
		c.cancelSubscription[id] = nil
	}
	c.cancelMu.Unlock()
}

// dataType is the message type used to send a result, which depends on the protocol
func (c *wsConnection) dataType() string {
	if c.newProtocol {
		return "next"
	}
	return "data"
}

func (c *wsConnection) send(reply wsReply) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.WriteJSON(reply); err != nil {
		c.log.Debug("websocket write error", zap.String("type", reply.Type), zap.Error(err))
		return err
	}
	return nil
}

// closeWith sends a close message with a code and reason (the connection is closed when serveWS returns)
func (c *wsConnection) closeWith(code int, text string) {
	c.log.Debug("closing websocket", zap.Int("code", code), zap.String("reason", text))
	_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(closeWriteDeadline))
}

func (c *wsConnection) read() (*wsMessage, error) {
	_, reader, err := c.NextReader()
	if err != nil {
		return nil, err
	}
	var message wsMessage
	if err = json.NewDecoder(reader).Decode(&message); err != nil {
		return nil, err
	}
	return &message, nil
}

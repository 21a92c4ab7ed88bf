package backend

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// The bridge speaks the obs-websocket v5 protocol: a Hello/Identify
// handshake followed by request/response envelopes. Only the two record
// requests are used.
const (
	opHello      = 0
	opIdentify   = 1
	opIdentified = 2
	opRequest    = 6
	opResponse   = 7

	bridgeRPCVersion = 1
)

// ErrBridgeAuth means the bridge rejected the configured password.
var ErrBridgeAuth = errors.New("bridge authentication failed")

type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	RPCVersion     int `json:"rpcVersion"`
	Authentication *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type identifyData struct {
	RPCVersion     int    `json:"rpcVersion"`
	Authentication string `json:"authentication,omitempty"`
}

type requestData struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
}

type responseData struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData"`
}

// ProbeBridge attempts a websocket handshake within the timeout. It reports
// reachability only; authentication happens on a real connection.
func ProbeBridge(addr string, timeout time.Duration) (bool, string) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.Dial(addr, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false, err.Error()
	}
	conn.Close()
	return true, ""
}

// Bridge is a connected remote broadcast-tool client. Calls are serialized
// by the caller; the bridge holds no internal locking.
type Bridge struct {
	conn    *websocket.Conn
	timeout time.Duration
	nextID  int
}

// DialBridge connects and completes the Identify handshake, authenticating
// when the server demands it.
func DialBridge(addr, password string, timeout time.Duration) (*Bridge, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.Dial(addr, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reach bridge at %s: %w", addr, err)
	}

	b := &Bridge{conn: conn, timeout: timeout}
	if err := b.identify(password); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bridge) identify(password string) error {
	var hello helloData
	if err := b.read(opHello, &hello); err != nil {
		return fmt.Errorf("bridge handshake failed: %w", err)
	}

	identify := identifyData{RPCVersion: bridgeRPCVersion}
	if hello.Authentication != nil {
		if password == "" {
			return fmt.Errorf("%w: server requires a password", ErrBridgeAuth)
		}
		identify.Authentication = authResponse(password, hello.Authentication.Salt, hello.Authentication.Challenge)
	}

	if err := b.write(opIdentify, identify); err != nil {
		return fmt.Errorf("bridge handshake failed: %w", err)
	}

	var identified struct{}
	if err := b.read(opIdentified, &identified); err != nil {
		return fmt.Errorf("%w: %v", ErrBridgeAuth, err)
	}
	return nil
}

// authResponse derives the obs-websocket auth string:
// base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	proof := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(proof[:])
}

// StartRecord asks the remote tool to begin recording.
func (b *Bridge) StartRecord() error {
	_, err := b.request("StartRecord")
	return err
}

// StopRecord stops the remote recording and returns the output path the
// tool reports, when it reports one.
func (b *Bridge) StopRecord() (string, error) {
	raw, err := b.request("StopRecord")
	if err != nil {
		return "", err
	}

	var out struct {
		OutputPath string `json:"outputPath"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", fmt.Errorf("bridge returned malformed response: %w", err)
		}
	}
	return out.OutputPath, nil
}

// Close tears the connection down.
func (b *Bridge) Close() error {
	return b.conn.Close()
}

func (b *Bridge) request(requestType string) (json.RawMessage, error) {
	b.nextID++
	id := strconv.Itoa(b.nextID)

	if err := b.write(opRequest, requestData{RequestType: requestType, RequestID: id}); err != nil {
		return nil, fmt.Errorf("bridge request %s failed: %w", requestType, err)
	}

	// Events (op 5 etc.) may interleave; skip until our response arrives.
	deadline := time.Now().Add(b.timeout)
	for time.Now().Before(deadline) {
		b.conn.SetReadDeadline(deadline)
		var env envelope
		if err := b.conn.ReadJSON(&env); err != nil {
			return nil, fmt.Errorf("bridge request %s failed: %w", requestType, err)
		}
		if env.Op != opResponse {
			continue
		}

		var resp responseData
		if err := json.Unmarshal(env.D, &resp); err != nil {
			return nil, fmt.Errorf("bridge returned malformed response: %w", err)
		}
		if resp.RequestID != id {
			continue
		}
		if !resp.RequestStatus.Result {
			return nil, fmt.Errorf("bridge rejected %s: %s (code %d)",
				requestType, resp.RequestStatus.Comment, resp.RequestStatus.Code)
		}
		return resp.ResponseData, nil
	}
	return nil, fmt.Errorf("bridge request %s timed out", requestType)
}

func (b *Bridge) write(op int, data any) error {
	d, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b.conn.SetWriteDeadline(time.Now().Add(b.timeout))
	return b.conn.WriteJSON(envelope{Op: op, D: d})
}

func (b *Bridge) read(wantOp int, into any) error {
	b.conn.SetReadDeadline(time.Now().Add(b.timeout))
	var env envelope
	if err := b.conn.ReadJSON(&env); err != nil {
		return err
	}
	if env.Op != wantOp {
		return fmt.Errorf("unexpected message op %d, want %d", env.Op, wantOp)
	}
	return json.Unmarshal(env.D, into)
}

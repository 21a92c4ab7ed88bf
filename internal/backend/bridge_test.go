package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeBridgeServer implements just enough of the obs-websocket v5 handshake
// and the two record requests for client tests.
type fakeBridgeServer struct {
	password  string
	salt      string
	challenge string
	recording bool
}

func (f *fakeBridgeServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		hello := map[string]any{"rpcVersion": bridgeRPCVersion}
		if f.password != "" {
			hello["authentication"] = map[string]string{
				"challenge": f.challenge,
				"salt":      f.salt,
			}
		}
		f.send(conn, opHello, hello)

		var identify envelope
		if err := conn.ReadJSON(&identify); err != nil {
			return
		}
		if f.password != "" {
			var d identifyData
			json.Unmarshal(identify.D, &d)
			if d.Authentication != authResponse(f.password, f.salt, f.challenge) {
				conn.Close()
				return
			}
		}
		f.send(conn, opIdentified, map[string]any{"negotiatedRpcVersion": bridgeRPCVersion})

		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			var req requestData
			json.Unmarshal(env.D, &req)
			f.handleRequest(conn, req)
		}
	}
}

func (f *fakeBridgeServer) handleRequest(conn *websocket.Conn, req requestData) {
	resp := map[string]any{
		"requestType":   req.RequestType,
		"requestId":     req.RequestID,
		"requestStatus": map[string]any{"result": true, "code": 100},
	}

	switch req.RequestType {
	case "StartRecord":
		if f.recording {
			resp["requestStatus"] = map[string]any{"result": false, "code": 500, "comment": "already recording"}
		}
		f.recording = true
	case "StopRecord":
		f.recording = false
		resp["responseData"] = map[string]string{"outputPath": "/tmp/remote-clip.mp4"}
	default:
		resp["requestStatus"] = map[string]any{"result": false, "code": 204, "comment": "unknown request"}
	}
	f.send(conn, opResponse, resp)
}

func (f *fakeBridgeServer) send(conn *websocket.Conn, op int, data any) {
	d, _ := json.Marshal(data)
	conn.WriteJSON(envelope{Op: op, D: d})
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestProbeBridgeReachable(t *testing.T) {
	fake := &fakeBridgeServer{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	ok, detail := ProbeBridge(wsURL(server), time.Second)
	if !ok {
		t.Fatalf("probe failed: %s", detail)
	}
}

func TestProbeBridgeUnreachable(t *testing.T) {
	ok, detail := ProbeBridge("ws://127.0.0.1:1", 200*time.Millisecond)
	if ok {
		t.Fatal("probe of closed port succeeded")
	}
	if detail == "" {
		t.Error("expected a failure detail")
	}
}

func TestBridgeRecordFlow(t *testing.T) {
	fake := &fakeBridgeServer{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	b, err := DialBridge(wsURL(server), "", time.Second)
	if err != nil {
		t.Fatalf("DialBridge: %v", err)
	}
	defer b.Close()

	if err := b.StartRecord(); err != nil {
		t.Fatalf("StartRecord: %v", err)
	}
	path, err := b.StopRecord()
	if err != nil {
		t.Fatalf("StopRecord: %v", err)
	}
	if path != "/tmp/remote-clip.mp4" {
		t.Errorf("outputPath = %q", path)
	}
}

func TestBridgeAuthentication(t *testing.T) {
	fake := &fakeBridgeServer{password: "secret", salt: "salty", challenge: "challenge"}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	b, err := DialBridge(wsURL(server), "secret", time.Second)
	if err != nil {
		t.Fatalf("DialBridge with password: %v", err)
	}
	b.Close()
}

func TestBridgeWrongPassword(t *testing.T) {
	fake := &fakeBridgeServer{password: "secret", salt: "salty", challenge: "challenge"}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	if _, err := DialBridge(wsURL(server), "wrong", time.Second); err == nil {
		t.Fatal("expected authentication failure")
	}
}

func TestBridgeMissingPassword(t *testing.T) {
	fake := &fakeBridgeServer{password: "secret", salt: "salty", challenge: "challenge"}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	if _, err := DialBridge(wsURL(server), "", time.Second); err == nil {
		t.Fatal("expected error when server requires a password")
	}
}

func TestBridgeRejectedRequest(t *testing.T) {
	fake := &fakeBridgeServer{recording: true}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	b, err := DialBridge(wsURL(server), "", time.Second)
	if err != nil {
		t.Fatalf("DialBridge: %v", err)
	}
	defer b.Close()

	err = b.StartRecord()
	if err == nil {
		t.Fatal("expected rejection while already recording")
	}
	if !strings.Contains(err.Error(), "already recording") {
		t.Errorf("err = %v, want comment surfaced", err)
	}
}

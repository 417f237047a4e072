// Command feedwatch tails the live Wavely feed over WebSocket.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wavely/internal/notifications"

	"github.com/gorilla/websocket"
)

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	secure := flag.Bool("tls", false, "Use https and wss")
	email := flag.String("email", "demo@wavely.dev", "Account email")
	password := flag.String("password", os.Getenv("WAVELY_PASSWORD"), "Account password")
	token := flag.String("token", os.Getenv("WAVELY_TOKEN"), "Bearer token; skips login")
	waveType := flag.String("wave-type", "", "Only show created waves of this type")
	like := flag.Uint("like", 0, "Like this wave once connected and report the ack")
	raw := flag.Bool("raw", false, "Print raw frames")
	flag.Parse()

	w := &watcher{host: *host, secure: *secure, http: &http.Client{Timeout: 10 * time.Second}}

	if *token == "" {
		var err error
		if *token, err = w.login(*email, *password); err != nil {
			log.Fatalf("❌ Login failed: %v", err)
		}
		log.Printf("✅ Logged in as %s", *email)
	}

	ticket, err := w.ticket(*token)
	if err != nil {
		log.Fatalf("❌ Ticket issuance failed: %v", err)
	}

	conn, err := w.dial(ticket, *waveType)
	if err != nil {
		log.Fatalf("❌ Connect failed: %v", err)
	}
	defer func() { _ = conn.Close() }()
	log.Printf("📡 Watching feed on %s", *host)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("read: %v", err)
				}
				return
			}
			if *raw {
				fmt.Println(string(frame))
				continue
			}
			printEvent(frame)
		}
	}()

	if *like != 0 {
		msg := map[string]interface{}{
			"type":       "mutate",
			"op":         "like_wave",
			"client_ref": fmt.Sprintf("feedwatch-%d", time.Now().UnixNano()),
			"wave_id":    *like,
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("write: %v", err)
		}
	}

	select {
	case <-done:
	case <-interrupt:
		log.Println("🛑 Interrupted")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

type watcher struct {
	host   string
	secure bool
	http   *http.Client
}

func (w *watcher) baseURL(scheme string) string {
	if w.secure {
		scheme += "s"
	}
	return scheme + "://" + w.host
}

func (w *watcher) login(email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := w.http.Post(w.baseURL("http")+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}

func (w *watcher) ticket(token string) (string, error) {
	req, err := http.NewRequest(http.MethodPost, w.baseURL("http")+"/api/ws/ticket", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := w.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var result struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Ticket, nil
}

func (w *watcher) dial(ticket, waveType string) (*websocket.Conn, error) {
	q := url.Values{"ticket": {ticket}}
	if waveType != "" {
		q.Set("wave_type", waveType)
	}
	u := w.baseURL("ws") + "/api/ws/feed?" + q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(u, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func printEvent(frame []byte) {
	ev, err := notifications.DecodeEvent(frame)
	if err != nil {
		log.Printf("undecodable frame: %s", frame)
		return
	}

	switch ev.Type {
	case notifications.EventSnapshot:
		var waves []json.RawMessage
		_ = json.Unmarshal(ev.Payload, &waves)
		log.Printf("📦 snapshot: %d waves", len(waves))
	case notifications.EventWaveCreated, notifications.EventWaveUpdated:
		var w struct {
			ID       uint   `json:"id"`
			Username string `json:"username"`
			Title    string `json:"title"`
			Likes    int    `json:"likes"`
			Comments int    `json:"comments"`
		}
		_ = json.Unmarshal(ev.Payload, &w)
		log.Printf("🌊 %s #%d @%s %q (%d likes, %d comments)", ev.Type, w.ID, w.Username, w.Title, w.Likes, w.Comments)
	case notifications.EventAck:
		log.Printf("✅ ack %s", ev.ClientRef)
	case notifications.EventRollback, notifications.EventError:
		msg := ""
		if ev.Error != nil {
			msg = ev.Error.Code + ": " + ev.Error.Message
		}
		log.Printf("⚠️  %s %s %s", ev.Type, ev.ClientRef, msg)
	default:
		log.Printf("🔔 %s %s", ev.Type, ev.Payload)
	}
}

package main

import (
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

type Message struct {
	Type    string `json:"type"`
	Payload struct {
		Kind    string          `json:"kind"`
		UserID  string          `json:"user_id"`
		Amount  decimal.Decimal `json:"amount"`
		Message string          `json:"message"`
		At      time.Time       `json:"at"`
	} `json:"payload"`
}

func main() {
	addr := flag.String("addr", "localhost:8888", "server address")
	token := flag.String("token", os.Getenv("BINARYNET_TOKEN"), "session token")
	flag.Parse()

	u := url.URL{
		Scheme:   "ws",
		Host:     *addr,
		Path:     "/api/v1/feed/ws",
		RawQuery: url.Values{"token": {*token}}.Encode(),
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, p, err := conn.ReadMessage()
			if err != nil {
				log.Println("read error:", err)
				return
			}

			var m Message
			if err := json.Unmarshal(p, &m); err != nil {
				log.Println("json unmarshal error:", err)
				continue
			}
			log.Printf("%s  %-20s %10s  %s\n", m.Payload.At.Format(time.RFC3339), m.Type, m.Payload.Amount.StringFixed(2), m.Payload.Message)
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("write close:", err)
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/stella/pkg/relay"
	"github.com/harunnryd/stella/pkg/signature"
	"github.com/joho/godotenv"
)

func main() {
	url := flag.String("url", "http://localhost:3000/wildix/webhook", "relay webhook URL")
	eventType := flag.String("type", relay.TypeCallUpdate, "call:start, call:update or call:end")
	callID := flag.String("call", "", "call id (random when empty)")
	text := flag.String("text", "", "utterance text for call:update")
	secret := flag.String("secret", "", "shared secret (defaults to WILDIX_SHARED_SECRET)")
	unsigned := flag.Bool("unsigned", false, "send without a signature header")
	flag.Parse()

	_ = godotenv.Load()
	if *secret == "" {
		*secret = os.Getenv("WILDIX_SHARED_SECRET")
	}
	if *secret == "" && !*unsigned {
		fmt.Println("usage: send_event -secret=... [-type=call:update -call=c1 -text=hola]")
		os.Exit(1)
	}
	if *callID == "" {
		*callID = uuid.NewString()
	}

	body, err := json.Marshal(relay.Event{
		Type: *eventType,
		Data: relay.EventData{CallID: *callID, Text: *text},
	})
	if err != nil {
		fmt.Println("encode error:", err)
		os.Exit(1)
	}
	req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(body))
	if err != nil {
		fmt.Println("request error:", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if !*unsigned {
		req.Header.Set(signature.DefaultHeader, signature.Sign(body, []byte(*secret)))
	}

	client := &http.Client{Timeout: 15 * time.Second}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		fmt.Println("send error:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	reply, _ := io.ReadAll(resp.Body)
	fmt.Printf("call_id: %s\nstatus: %d\nrequest_id: %s\nlatency: %s\nbody: %s\n",
		*callID, resp.StatusCode, resp.Header.Get("X-Request-Id"), time.Since(start).Round(time.Millisecond), bytes.TrimSpace(reply))
}

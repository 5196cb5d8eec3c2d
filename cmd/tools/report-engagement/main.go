// cmd/tools/report-engagement/main.go
//
// Reports one engagement signal to a running pipeline manager. This is
// how manually observed replies and clicks enter the system:
//
//	report-engagement -opportunity <id> -channel email -type reply -sentiment positive
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
)

func main() {
	var (
		endpoint    = flag.String("endpoint", "http://localhost:8087/engagement", "intake endpoint")
		opportunity = flag.String("opportunity", "", "opportunity id the signal belongs to (required)")
		company     = flag.String("company", "", "company name, resolved from the opportunity when omitted")
		channel     = flag.String("channel", "", "channel the signal arrived on: email, linkedin, or twitter (required)")
		eventType   = flag.String("type", "", "signal type: link_click, reply, or note (required)")
		detail      = flag.String("detail", "", "free-form detail")
		sentiment   = flag.String("sentiment", "", "reply sentiment: positive, neutral, or negative")
	)
	flag.Parse()

	if *opportunity == "" || *channel == "" || *eventType == "" {
		flag.Usage()
		os.Exit(2)
	}

	payload := map[string]interface{}{
		"opportunityId": *opportunity,
		"channel":       *channel,
		"type":          *eventType,
		"occurredAt":    time.Now().UTC().Format(time.RFC3339),
	}
	if *company != "" {
		payload["company"] = *company
	}
	if *detail != "" {
		payload["detail"] = *detail
	}
	if *sentiment != "" {
		payload["sentiment"] = *sentiment
	}

	body, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report-engagement: %v\n", err)
		os.Exit(1)
	}

	resp, err := http.Post(*endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "report-engagement: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusAccepted {
		fmt.Fprintf(os.Stderr, "report-engagement: rejected (%d): %s\n", resp.StatusCode, out)
		os.Exit(1)
	}
	fmt.Printf("accepted: %s", out)
}

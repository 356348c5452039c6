package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/alovak/cardflow-bridge/gateway"
	"github.com/alovak/cardflow-bridge/internal/pan"
)

var (
	flagGateway      = flag.String("gateway", "http://127.0.0.1:8080", "gateway base URL")
	flagID           = flag.String("id", "", "correlation id (random when empty)")
	flagAmount       = flag.String("amount", "10.00", "amount in major units")
	flagPAN          = flag.String("pan", "5500000000000004", "card number")
	flagCVV          = flag.String("cvv", "123", "card verification value")
	flagExpiry       = flag.String("exp", "12/30", "expiry as MM/YY")
	flagHolder       = flag.String("name", "TEST HOLDER", "card holder name")
	flagInstallments = flag.Int("installments", 1, "number of installments")
	flagWait         = flag.Duration("wait", 5*time.Second, "how long the gateway should wait for the decision")
	flagPoll         = flag.Duration("poll", 0, "poll the status endpoint this long when the answer is pending")
	flagStatus       = flag.Bool("status", false, "only look up -id")
	flagPrint        = flag.Bool("print", false, "print the request JSON only, do not POST")
)

func main() {
	flag.Parse()

	cli := gateway.NewClient(*flagGateway, nil)
	ctx := context.Background()

	if *flagStatus {
		if *flagID == "" {
			fail("-status requires -id")
		}
		result, err := cli.Status(ctx, *flagID)
		if errors.Is(err, gateway.ErrNotFound) {
			fail("%s: unknown or expired", *flagID)
		}
		must(err)
		printResult(result)
		return
	}

	month, year := parseExpiry(*flagExpiry)
	in := gateway.Input{
		CorrelationID: *flagID,
		Amount:        json.Number(*flagAmount),
		CardNumber:    pan.Normalize(*flagPAN),
		CVV:           *flagCVV,
		ExpiryMonth:   month,
		ExpiryYear:    year,
		HolderName:    *flagHolder,
		Installments:  *flagInstallments,
	}
	if in.CorrelationID == "" {
		in.CorrelationID = uuid.NewString()
	}

	if *flagPrint {
		enc, _ := sonic.ConfigStd.MarshalIndent(in, "", "  ")
		fmt.Println(string(enc))
		return
	}

	fmt.Printf("PAN: %s  AMOUNT: %s  ID: %s\n", pan.Mask(in.CardNumber), in.Amount, in.CorrelationID)

	result, err := cli.Submit(ctx, in, *flagWait)
	must(err)

	deadline := time.Now().Add(*flagPoll)
	for result.Pending() && time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		result, err = cli.Status(ctx, in.CorrelationID)
		must(err)
	}
	printResult(result)
}

func parseExpiry(s string) (int, int) {
	var month, year int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d/%d", &month, &year); err != nil {
		fail("-exp must be MM/YY: %v", err)
	}
	return month, year
}

func printResult(result *gateway.Result) {
	if result.Pending() {
		fmt.Printf("%s: %s\n", result.CorrelationID, result.Status)
		return
	}
	resp := result.Response
	fmt.Printf("%s: %s response=%s auth=%s payment=%s amount=%s\n",
		result.CorrelationID, result.Status, resp.ResponseCode, resp.AuthorizationCode, resp.PaymentID, resp.Amount)
}

func must(err error) {
	if err != nil {
		fail("%v", err)
	}
}

func fail(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

package main

import (
	"context"
	"time"

	"handset-go/bus"
	"handset-go/services/handset"
	"handset-go/services/handset/config"
	"handset-go/services/lcd"
	"handset-go/x/logx"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	ctx := context.Background()
	b := bus.NewBus(8)
	board := handset.DefaultBoard()

	if board.Display != nil {
		_ = lcd.New(board.Display, logx.New("lcd")).Start(ctx, b.NewConnection("lcd"))
	}

	err := handset.Run(ctx, b.NewConnection("handset"), config.Default(), board, logx.New("handset"))

	// Only reached when the handset could not start. Keep saying why.
	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()
	for t := range tick.C {
		println(t.Format("15:04:05"), "handset:", err.Error())
	}
}

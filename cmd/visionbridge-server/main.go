package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"visionbridge-server-go/internal/bootstrap"
)

func main() {
	fmt.Printf("[%s] [INFO] [BOOT] starting visionbridge-server...\n",
		time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "visionbridge-server failed: %v\n", err)
		os.Exit(1)
	}
}

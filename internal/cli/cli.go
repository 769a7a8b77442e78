// Package cli drives the interactive terminal session: symbol prompt,
// trade parameter prompts with validation, and result display.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"neotrader/internal/engine"
	"neotrader/internal/logger"
	"neotrader/internal/marketdata"
	"neotrader/internal/models"
)

type CLI struct {
	manager *engine.Manager
	quotes  *marketdata.Stream
	log     *logger.Logger
	in      *bufio.Reader
}

func New(manager *engine.Manager, quotes *marketdata.Stream, log *logger.Logger) *CLI {
	return &CLI{
		manager: manager,
		quotes:  quotes,
		log:     log,
		in:      bufio.NewReader(os.Stdin),
	}
}

// Run loops symbol → live LTP stream → trade parameters → submission
// until the operator quits or ctx ends.
func (c *CLI) Run(ctx context.Context) {
	printInfo("Welcome to the Neo bracket trading CLI!")
	printInfo("Press Ctrl+C to exit the application")

	for ctx.Err() == nil {
		symbol, ok := c.promptSymbol()
		if !ok {
			return
		}

		c.manager.StartLtpStream(ctx, symbol, nil)

		params, ok := c.promptTradeParameters(ctx, symbol)
		if !ok {
			c.manager.StopLtpStream(symbol)
			continue
		}
		c.executeTrade(ctx, symbol, params)
		c.manager.StopLtpStream(symbol)
	}
}

type tradeParams struct {
	side         models.OrderSide
	quantity     int
	entryPrice   float64
	stopLossPts  float64
	targetPoints float64
}

func (c *CLI) promptSymbol() (string, bool) {
	for {
		input, err := c.readLine("\nWhich symbol to enter? (or 'quit' to exit): ")
		if err != nil {
			return "", false
		}
		switch strings.ToLower(strings.TrimSpace(input)) {
		case "quit", "exit", "q":
			return "", false
		}
		symbol := strings.ToUpper(strings.TrimSpace(input))
		if ValidateSymbol(symbol) {
			return symbol, true
		}
		printError("Invalid symbol format. Please enter a valid symbol (e.g., RELIANCE).")
	}
}

func (c *CLI) promptTradeParameters(ctx context.Context, symbol string) (tradeParams, bool) {
	var params tradeParams

	for {
		input, err := c.readLine("B/S (Buy/Sell): ")
		if err != nil {
			return params, false
		}
		side, ok := ParseSide(input)
		if ok {
			params.side = side
			break
		}
		printError("Invalid input. Please enter 'B' for Buy or 'S' for Sell.")
	}

	for {
		input, err := c.readLine("Quantity: ")
		if err != nil {
			return params, false
		}
		if quantity := ValidateQuantity(input); quantity > 0 {
			params.quantity = quantity
			break
		}
		printError("Invalid quantity. Please enter a positive integer.")
	}

	for {
		input, err := c.readLine("SL points: ")
		if err != nil {
			return params, false
		}
		if points, ok := ValidatePoints(input); ok {
			params.stopLossPts = points
			break
		}
		printError("Invalid SL points. Please enter a positive number.")
	}

	for {
		input, err := c.readLine("Target points: ")
		if err != nil {
			return params, false
		}
		if points, ok := ValidatePoints(input); ok {
			params.targetPoints = points
			break
		}
		printError("Invalid target points. Please enter a positive number.")
	}

	ltp, err := c.quotes.Current(ctx, symbol)
	if err != nil {
		printError("Could not get current LTP. Cannot proceed with trade.")
		return params, false
	}
	params.entryPrice = ltp
	return params, true
}

func (c *CLI) executeTrade(ctx context.Context, symbol string, params tradeParams) {
	printInfo(fmt.Sprintf("Executing trade: %s %s %d @ %.2f", symbol, params.side, params.quantity, params.entryPrice))
	printInfo(fmt.Sprintf("SL: %.2f, Target: %.2f", params.stopLossPts, params.targetPoints))

	result := c.manager.ExecuteNewTrade(ctx, symbol, params.side, params.quantity, params.entryPrice, params.stopLossPts, params.targetPoints)
	if result.Success {
		c.log.WithFields(logrus.Fields{
			"component": "cli",
			"symbol":    symbol,
			"trade_id":  result.TradeID,
		}).Info("Trade submitted.")
		printSuccess(result.Message)
	} else {
		c.log.WithFields(logrus.Fields{
			"component": "cli",
			"symbol":    symbol,
		}).Warnf("Trade rejected: %s", result.Message)
		printError(result.Message)
	}
}

func (c *CLI) readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" && err == io.EOF {
		return "", io.EOF
	}
	return line, nil
}

package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"book-replay-go/logs"
	"book-replay-go/metrics"
)

// DefaultFeedEndpoint 默认行情 WS 端点。
const DefaultFeedEndpoint = "wss://fstream.binance.com"

// FeedClient 订阅单一标的深度流并把归一化更新交给 handler。
// 连接断开时 Run 返回错误，由调用方决定重连节奏；
// 解析失败的消息计数、记日志后丢弃，不中断读取循环。
type FeedClient struct {
	Endpoint string
	Symbol   string
	Dialer   *websocket.Dialer
	Logger   logs.Logger

	readTimeout time.Duration
}

func NewFeedClient(endpoint, symbol string, logger logs.Logger) *FeedClient {
	if endpoint == "" {
		endpoint = DefaultFeedEndpoint
	}
	if logger == nil {
		logger = logs.DefaultLogger
	}
	return &FeedClient{
		Endpoint:    endpoint,
		Symbol:      symbol,
		Dialer:      websocket.DefaultDialer,
		Logger:      logger,
		readTimeout: 60 * time.Second,
	}
}

// streamURL 构建 combined stream 地址（depth20@100ms 部分快照流）。
func (f *FeedClient) streamURL() (string, error) {
	if f.Symbol == "" {
		return "", fmt.Errorf("symbol required")
	}
	stream := strings.ToLower(f.Symbol) + "@depth20@100ms"
	u := url.URL{
		Scheme: "wss",
		Host:   strings.TrimPrefix(f.Endpoint, "wss://"),
		Path:   "/stream",
	}
	q := u.Query()
	q.Set("streams", stream)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run 建立连接并持续读取，直到 ctx 取消或连接出错。
func (f *FeedClient) Run(ctx context.Context, handler func(*BookUpdate)) error {
	addr, err := f.streamURL()
	if err != nil {
		return err
	}
	conn, _, err := f.Dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	// ctx 取消时关闭连接，解除阻塞中的 ReadMessage
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	})
	f.Logger.Info("feed connected", "endpoint", f.Endpoint, "symbol", f.Symbol)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed read: %w", err)
		}
		metrics.FeedMessages.Inc()

		update, err := ParseBookUpdate(raw)
		if err != nil {
			// 坏消息丢弃，继续处理下一条
			metrics.FeedParseErrors.Inc()
			f.Logger.Warn("feed message dropped", "error", err)
			continue
		}
		if handler != nil {
			handler(update)
		}
	}
}

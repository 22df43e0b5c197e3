package main

import (
	"context"

	"github.com/panjf2000/gnet/v2"

	"github.com/lixenwraith/shiplog"
	"github.com/lixenwraith/shiplog/compat"
)

// Example gnet event handler
type echoServer struct {
	gnet.BuiltinEventEngine
	logger *shiplog.Logger
}

func (es *echoServer) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	es.logger.Debug(context.Background(), "Connection opened from {Remote}", c.RemoteAddr().String())
	return nil, gnet.None
}

func (es *echoServer) OnTraffic(c gnet.Conn) gnet.Action {
	buf, _ := c.Next(-1)
	c.Write(buf)
	return gnet.None
}

func main() {
	// Ships to a collector started with: go run ./cmd/collector
	err := shiplog.InitWithDefaults(
		"server_url=http://127.0.0.1:5341",
		"minimum_level=Debug",
		"compression=gzip",
	)
	if err != nil {
		panic(err)
	}
	defer shiplog.Shutdown()

	gnetAdapter, err := compat.NewBuilder().
		WithLogger(shiplog.For("gnet")).
		BuildStructuredGnet()
	if err != nil {
		panic(err)
	}

	// Configure gnet server with the logger
	err = gnet.Run(
		&echoServer{logger: shiplog.For("Example.Echo")},
		"tcp://127.0.0.1:9000",
		gnet.WithMulticore(true),
		gnet.WithLogger(gnetAdapter),
		gnet.WithReusePort(true),
	)
	if err != nil {
		panic(err)
	}
}

package agent

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

const textMessage = websocket.TextMessage

type gorillaDialer struct{}

func (gorillaDialer) DialContext(ctx context.Context, urlStr string, header http.Header) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, urlStr, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

package httpapi

import (
	"io"
	"net/http"

	"github.com/goliatone/go-droplet/ingress"
	"github.com/labstack/echo/v4"
)

// maxWebhookBody bounds one webhook payload read. The platform sends single
// resources, not batches; anything larger is noise.
const maxWebhookBody = 1 << 20

// handleWebhook feeds one platform delivery through the ingress dispatcher.
// Every accepted outcome, handled or dropped, answers {"status":"ok"} so the
// platform stops redelivering; verification and storage failures surface as
// error envelopes and keep the redelivery loop alive.
func (s *Server) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return badRequestError("httpapi: read webhook body: " + err.Error())
	}
	if len(body) > maxWebhookBody {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"status": "rejected"})
	}

	headers := make(map[string]string, len(c.Request().Header))
	for name, values := range c.Request().Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	result, err := s.webhooks.Dispatch(c.Request().Context(), ingress.InboundRequest{
		Headers: headers,
		Body:    body,
		Metadata: map[string]any{
			"remote_addr": c.RealIP(),
		},
	})
	if err != nil {
		return err
	}

	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return c.JSON(status, map[string]string{"status": "ok"})
}

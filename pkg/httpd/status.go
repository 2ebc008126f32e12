package httpd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"

	"github.com/lk2023060901/zeus-link/pkg/clock"
	"github.com/lk2023060901/zeus-link/pkg/link"
	"github.com/lk2023060901/zeus-link/pkg/service"
)

// ErrUnknownFormat 未知的状态页编码
var ErrUnknownFormat = errors.New("httpd: unknown status format")

// Responder 根据完整的请求头生成完整的应答报文。
type Responder interface {
	Respond(head []byte) []byte
}

// ResponderFunc 把函数适配为 Responder。
type ResponderFunc func(head []byte) []byte

// Respond 调用 f(head)。
func (f ResponderFunc) Respond(head []byte) []byte {
	return f(head)
}

// Format 状态页编码
type Format string

const (
	// FormatCBOR CBOR 编码
	FormatCBOR Format = "cbor"
	// FormatJSON JSON 编码
	FormatJSON Format = "json"
)

// LinkSource 提供链路状态快照，*link.Establisher 满足该接口。
type LinkSource interface {
	Snapshot() link.Status
}

// Status 状态页内容
type Status struct {
	Time     time.Time    `json:"time" cbor:"time"`
	UptimeMS int64        `json:"uptime_ms" cbor:"uptime_ms"`
	Link     *link.Status `json:"link,omitempty" cbor:"link,omitempty"`
	Services int          `json:"services" cbor:"services"`
	Sweeps   uint64       `json:"sweeps" cbor:"sweeps"`
	Reaped   uint64       `json:"reaped" cbor:"reaped"`
}

// StatusResponder 以 CBOR 或 JSON 输出运行状态。
type StatusResponder struct {
	reg     *service.Registry
	clock   clock.Clock
	link    LinkSource
	format  Format
	started time.Time
	encMode cbor.EncMode
}

// NewStatusResponder 创建状态页应答器，link 可以为 nil。
func NewStatusResponder(reg *service.Registry, clk clock.Clock, src LinkSource, format Format) (*StatusResponder, error) {
	if format == "" {
		format = FormatCBOR
	}
	if format != FormatCBOR && format != FormatJSON {
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339
	em, err := opts.EncMode()
	if err != nil {
		return nil, errors.Wrap(err, "httpd: cbor encode mode")
	}
	return &StatusResponder{
		reg:     reg,
		clock:   clk,
		link:    src,
		format:  format,
		started: clk.Now(),
		encMode: em,
	}, nil
}

// Snapshot 采集当前状态。
func (r *StatusResponder) Snapshot() Status {
	st := Status{
		Time:     r.clock.Now(),
		UptimeMS: r.clock.Since(r.started).Milliseconds(),
		Services: r.reg.Len(),
		Sweeps:   r.reg.Sweeps(),
		Reaped:   r.reg.Reaped(),
	}
	if r.link != nil {
		ls := r.link.Snapshot()
		st.Link = &ls
	}
	return st
}

// Encode 按配置的格式编码状态，返回内容类型与正文。
func (r *StatusResponder) Encode(st Status) (string, []byte, error) {
	switch r.format {
	case FormatJSON:
		body, err := json.Marshal(st)
		return "application/json", body, err
	default:
		body, err := r.encMode.Marshal(st)
		return "application/cbor", body, err
	}
}

// Respond 对 GET 请求返回状态页，其他方法返回 405。
func (r *StatusResponder) Respond(head []byte) []byte {
	if !bytes.HasPrefix(head, []byte("GET ")) {
		return response(405, "Method Not Allowed", "text/plain", []byte("method not allowed\n"))
	}
	ctype, body, err := r.Encode(r.Snapshot())
	if err != nil {
		return response(500, "Internal Server Error", "text/plain", []byte(err.Error()+"\n"))
	}
	return response(200, "OK", ctype, body)
}

func response(code int, reason, ctype string, body []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.0 %d %s\r\n", code, reason)
	fmt.Fprintf(&b, "Content-Type: %s\r\n", ctype)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n\r\n")
	b.Write(body)
	return b.Bytes()
}

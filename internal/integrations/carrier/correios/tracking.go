package correios

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
)

const pathTracking = "/srorastro/v1/objetos/"

type sroResponse struct {
	Objetos []sroObject `json:"objetos"`
}

type sroObject struct {
	CodObjeto string     `json:"codObjeto"`
	Mensagem  string     `json:"mensagem"`
	Eventos   []sroEvent `json:"eventos"`
}

type sroEvent struct {
	Codigo     string `json:"codigo"`
	Tipo       string `json:"tipo"`
	DtHrCriado string `json:"dtHrCriado"`
	// legacy split fields
	Data      string `json:"data"`
	Hora      string `json:"hora"`
	Descricao string `json:"descricao"`
	Detalhe   string `json:"detalhe"`
	Unidade   struct {
		Nome     string `json:"nome"`
		Tipo     string `json:"tipo"`
		Endereco struct {
			Cidade string `json:"cidade"`
			UF     string `json:"uf"`
		} `json:"endereco"`
	} `json:"unidade"`
}

func (c *Client) GetTracking(ctx context.Context, code string) (*carrier.TrackingResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var resp sroResponse
	err := c.retry(ctx, "get tracking", func() error {
		resp = sroResponse{}
		return c.call(ctx, "get tracking", c.timeout, request{
			method: http.MethodGet,
			path:   pathTracking + url.PathEscape(code),
			query:  url.Values{"resultado": {"T"}},
		}, &resp)
	})
	if err != nil {
		return nil, err
	}

	res := &carrier.TrackingResult{Code: code}
	for _, obj := range resp.Objetos {
		if obj.CodObjeto != "" && !strings.EqualFold(obj.CodObjeto, code) {
			continue
		}
		res.Message = obj.Mensagem
		for _, ev := range obj.Eventos {
			res.Events = append(res.Events, convertEvent(ev))
		}
		break
	}
	sort.SliceStable(res.Events, func(i, j int) bool {
		return res.Events[i].Time.After(res.Events[j].Time)
	})
	return res, nil
}

// GetTrackingBatch fans out one query per distinct code. A failed code maps
// to a nil result and an entry in the error map.
func (c *Client) GetTrackingBatch(ctx context.Context, codes []string) (map[string]*carrier.TrackingResult, map[string]error) {
	out := make(map[string]*carrier.TrackingResult, len(codes))
	errs := make(map[string]error)
	var mu sync.Mutex

	var g errgroup.Group
	if c.batchLimit > 0 {
		g.SetLimit(c.batchLimit)
	}
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		g.Go(func() error {
			res, err := c.GetTracking(ctx, code)
			mu.Lock()
			defer mu.Unlock()
			out[code] = res
			if err != nil {
				errs[code] = err
				c.log.Warn("tracking query failed", zap.String("tracking_code", code), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, errs
}

func convertEvent(ev sroEvent) carrier.TrackingEvent {
	out := carrier.TrackingEvent{
		Code:        ev.Codigo,
		Type:        ev.Tipo,
		Description: strings.TrimSpace(ev.Descricao),
		Time:        eventTime(ev),
	}
	if d := strings.TrimSpace(ev.Detalhe); d != "" {
		out.Description += " - " + d
	}
	addr := ev.Unidade.Endereco
	switch {
	case addr.Cidade != "" && addr.UF != "":
		out.Location = addr.Cidade + " - " + addr.UF
	case addr.Cidade != "":
		out.Location = addr.Cidade
	default:
		out.Location = strings.TrimSpace(ev.Unidade.Nome)
		if out.Location == "" {
			out.Location = ev.Unidade.Tipo
		}
	}
	return out
}

// eventTime composes the event timestamp from dtHrCriado or, for older
// payloads, the separate date and time fields.
func eventTime(ev sroEvent) time.Time {
	if t, ok := parseCarrierTime(ev.DtHrCriado, ""); ok {
		return t
	}
	if ev.Data == "" {
		return time.Time{}
	}
	hora := ev.Hora
	if hora == "" {
		hora = "00:00"
	}
	if len(hora) == 5 {
		hora += ":00"
	}
	for _, layout := range []string{"02/01/2006 15:04:05 -07:00", "2006-01-02 15:04:05 -07:00"} {
		if t, err := time.Parse(layout, ev.Data+" "+hora+" "+defaultZoneOffset); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

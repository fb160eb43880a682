package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_scalper/internal/domain"
	"go.uber.org/zap"
)

func newTestPipeline(gw *MockGateway, journal domain.TradeRepository, fok bool) *OrderPipeline {
	set := DefaultScalperSettings()
	set.UseLimitFOK = fok
	return NewOrderPipeline(gw, journal, NewSettings(set), zap.NewNop())
}

func TestOrderPipeline_LimitFOKFilled(t *testing.T) {
	gw := &MockGateway{}
	journal := &MockJournal{}
	p := newTestPipeline(gw, journal, true)

	order, err := p.Submit(context.Background(), Submission{Symbol: "BTCUSDT", Side: domain.SideSell, Quantity: d("2"), Price: d("101")})
	require.NoError(t, err)

	call := gw.LastCall()
	assert.Equal(t, domain.OrderTypeLimit, call.Type)
	assert.True(t, call.Price.Equal(d("101")))

	assert.Equal(t, domain.OrderStatusFilled, order.Status)
	assert.True(t, order.FilledPrice.Equal(d("101")))
	assert.True(t, order.CumulativeQuote.Equal(d("202")))
	assert.Len(t, journal.Orders, 1)
}

func TestOrderPipeline_MarketWhenFOKDisabledOrNoPrice(t *testing.T) {
	gw := &MockGateway{MarketPrice: d("50")}
	p := newTestPipeline(gw, nil, false)

	order, err := p.Submit(context.Background(), Submission{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: d("1"), Price: d("49")})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderTypeMarket, gw.LastCall().Type)
	assert.True(t, order.FilledPrice.Equal(d("50")))

	p = newTestPipeline(gw, nil, true)
	_, err = p.Submit(context.Background(), Submission{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: d("1")})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderTypeMarket, gw.LastCall().Type)
}

func TestOrderPipeline_NotFilled(t *testing.T) {
	gw := &MockGateway{Fill: notFilled}
	journal := &MockJournal{}

	_, err := newTestPipeline(gw, journal, true).Submit(context.Background(), Submission{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: d("1"), Price: d("10")})
	assert.ErrorIs(t, err, ErrNotFilled)

	_, err = newTestPipeline(gw, journal, false).Submit(context.Background(), Submission{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: d("1")})
	assert.ErrorIs(t, err, ErrMarketNotFilled)

	assert.Empty(t, journal.Orders)
}

func TestOrderPipeline_GatewayError(t *testing.T) {
	boom := errors.New("exchange down")
	gw := &MockGateway{Fill: func(gatewayCall) (*domain.OrderResult, error) { return nil, boom }}
	p := newTestPipeline(gw, nil, true)

	_, err := p.Submit(context.Background(), Submission{Symbol: "BTCUSDT", Side: domain.SideSell, Quantity: d("1"), Price: d("10")})
	assert.ErrorIs(t, err, boom)

	buy, sell := p.Available()
	assert.Equal(t, 1, buy)
	assert.Equal(t, 1, sell)
}

func TestOrderPipeline_OneSubmissionPerSide(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &MockGateway{}
	gw.Fill = func(call gatewayCall) (*domain.OrderResult, error) {
		if call.Side == domain.SideBuy {
			close(entered)
			<-release
		}
		return &domain.OrderResult{Success: true, Status: domain.OrderStatusFilled, FilledPrice: call.Price, FilledQuantity: call.Quantity}, nil
	}
	p := newTestPipeline(gw, nil, true)

	done := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), Submission{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: d("1"), Price: d("10")})
		done <- err
	}()
	<-entered

	_, err := p.Submit(context.Background(), Submission{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: d("1"), Price: d("10")})
	assert.ErrorIs(t, err, ErrGuardBusy)

	_, err = p.Submit(context.Background(), Submission{Symbol: "BTCUSDT", Side: domain.SideSell, Quantity: d("1"), Price: d("11")})
	assert.NoError(t, err, "sell side is independent")

	buy, _ := p.Available()
	assert.Equal(t, 0, buy)
	p.Reset()
	buy, sell := p.Available()
	assert.Equal(t, 1, buy)
	assert.Equal(t, 1, sell)

	close(release)
	require.NoError(t, <-done)
	buy, _ = p.Available()
	assert.Equal(t, 1, buy)
}

func TestOrderPipeline_InvalidSide(t *testing.T) {
	p := newTestPipeline(&MockGateway{}, nil, true)
	_, err := p.Submit(context.Background(), Submission{Symbol: "BTCUSDT", Side: "Hold", Quantity: d("1")})
	assert.ErrorIs(t, err, ErrInvalidSide)
}

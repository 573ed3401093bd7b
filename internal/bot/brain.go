package bot

import (
	"time"

	"crossarb/internal/models"
	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// brain.go - выбор действия для актива
//
// Brain отвечает на один вопрос: что делать с монетой, лежащей на
// бирже. Варианты: продать/купить на месте (Trade), перевезти на
// другую биржу (Transfer) или подождать (Wait).

// defaultAdditive - запас на проскальзывание и скрытые издержки,
// в котировочной валюте. Сделки с выгодой меньше запаса не стоят свеч.
const defaultAdditive = 2.0

// consultDelay - пауза перед повторной консультацией по активу,
// для которого сейчас нет выгодного действия
const consultDelay = 10 * time.Second

type Brain struct {
	analyst  *Analyst
	mapper   *Mapper
	additive float64
	log      *zap.SugaredLogger
}

func NewBrain(analyst *Analyst, mapper *Mapper, additive float64) *Brain {
	if additive <= 0 {
		additive = defaultAdditive
	}
	return &Brain{
		analyst:  analyst,
		mapper:   mapper,
		additive: additive,
		log:      utils.Named("Brain"),
	}
}

// Analyse возвращает рекомендацию для актива на бирже exchange
func (b *Brain) Analyse(exchange string, asset models.Asset) models.Recommendation {
	if usdtID, ok := b.mapper.USDTID(); ok && asset.CoinID == usdtID {
		return b.analyseUSDT(exchange, asset)
	}
	if b.mapper.IsAnalyzed(asset.CoinID) {
		return b.analyseCoin(exchange, asset)
	}

	// Монета вне арбитражного множества: избавляемся
	b.log.Warnw("coin is not analyzed, selling", "coin", asset.CoinID, "exchange", exchange)
	return b.sellToUSDT(asset)
}

// analyseUSDT решает судьбу свободного USDT
func (b *Brain) analyseUSDT(exchange string, asset models.Asset) models.Recommendation {
	deal, ok := b.analyst.BestDeal()
	if !ok {
		b.log.Infow("no deals available")
		return models.Wait{Duration: consultDelay}
	}

	dealFee, ok := b.mapper.Fee(deal)
	if !ok {
		b.log.Infow("deal has no transfer fee", "coin", deal.CoinID)
		return models.Wait{Duration: consultDelay}
	}

	if exchange == deal.Departure {
		// USDT уже на бирже отправления: оцениваем перевозку USDT
		// к месту продажи
		usdtCoin, ok := b.mapper.BestTransfer(exchange, deal.Destination, asset.CoinID)
		if !ok || !usdtCoin.KnownFee() {
			b.log.Infow("usdt has no transfer route", "from", exchange, "to", deal.Destination)
			return models.Wait{Duration: consultDelay}
		}

		profit := (asset.Amount-usdtCoin.Fee)*(1+deal.Benefit) - b.additive
		if profit >= dealFee {
			return models.Transfer{
				CoinID:      asset.CoinID,
				Departure:   exchange,
				Destination: deal.Destination,
			}
		}
		return models.Wait{Duration: consultDelay}
	}

	profit := asset.Amount*(1+deal.Benefit) - b.additive
	if profit >= dealFee {
		return models.Trade{Sell: asset.CoinID, Buy: deal.CoinID}
	}
	return models.Wait{Duration: consultDelay}
}

// analyseCoin решает судьбу арбитражной монеты
func (b *Brain) analyseCoin(exchange string, asset models.Asset) models.Recommendation {
	deals := b.analyst.AllBenefits(exchange, asset.CoinID)
	if len(deals) == 0 {
		b.log.Infow("no routes for coin, selling", "coin", asset.CoinID, "exchange", exchange)
		return b.sellToUSDT(asset)
	}
	deal := deals[0]

	dealFee, ok := b.mapper.Fee(deal)
	if !ok {
		b.log.Infow("coin has no transfer fee, selling", "coin", asset.CoinID)
		return b.sellToUSDT(asset)
	}

	profit := asset.Amount*(1+deal.Benefit) - b.additive
	if profit >= dealFee {
		return models.Transfer{
			CoinID:      asset.CoinID,
			Departure:   exchange,
			Destination: deal.Destination,
		}
	}
	return b.sellToUSDT(asset)
}

func (b *Brain) sellToUSDT(asset models.Asset) models.Recommendation {
	usdtID, ok := b.mapper.USDTID()
	if !ok {
		usdtID = models.NoCoinID
	}
	return models.Trade{Sell: asset.CoinID, Buy: usdtID}
}

package migrations

import (
	"gorm.io/gorm"
)

// uppercaseCandleSymbols normalizes symbols written by older refreshers
// ("btcusdt", "BTC_USDT") to the exchange form "BTCUSDT". Rows that would
// collide with an existing normalized bar are dropped first.
func uppercaseCandleSymbols(db *gorm.DB) error {
	if !db.Migrator().HasTable("candles") {
		return nil
	}

	if err := db.Exec(`
DELETE FROM candles
WHERE symbol <> UPPER(REPLACE(symbol, '_', ''))
  AND EXISTS (
    SELECT 1 FROM candles c2
    WHERE c2.symbol = UPPER(REPLACE(candles.symbol, '_', ''))
      AND c2.bar_interval = candles.bar_interval
      AND c2.datetime = candles.datetime
  )`).Error; err != nil {
		return err
	}

	return db.Exec(`UPDATE candles SET symbol = UPPER(REPLACE(symbol, '_', '')) WHERE symbol <> UPPER(REPLACE(symbol, '_', ''))`).Error
}

package mtk

import (
	"encoding/hex"
	"log"
)

// logRX/logTX trace bulk transfers under -v: short transfers are dumped in
// full, long ones are just sized, so a verbose run stays readable during a
// megabyte-sized chunked read or write.
const verboseDumpLimit = 63

func logRX(buf []byte) {
	if len(buf) < verboseDumpLimit {
		log.Printf("RX: %s", hex.EncodeToString(buf))
	} else {
		log.Printf("RX: %d bytes", len(buf))
	}
}

func logTX(buf []byte) {
	if len(buf) < verboseDumpLimit {
		log.Printf("TX: %s", hex.EncodeToString(buf))
	} else {
		log.Printf("TX: %d bytes", len(buf))
	}
}

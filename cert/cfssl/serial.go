package cfssl

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/srl-labs/devca/utils"
)

// nextSerial increments the serial counter file shared by the signing
// operations of a run and returns the new serial. A missing or empty file is
// seeded with a random 64-bit value so serials stay unique across runs
// without a database.
func nextSerial(path string) (*big.Int, error) {
	serial := new(big.Int)

	b, err := os.ReadFile(path)
	switch {
	case err == nil && len(strings.TrimSpace(string(b))) > 0:
		if _, ok := serial.SetString(strings.TrimSpace(string(b)), 16); !ok {
			return nil, fmt.Errorf("malformed serial file %s", path)
		}
		serial.Add(serial, big.NewInt(1))
	case err == nil || os.IsNotExist(err):
		max := new(big.Int).Lsh(big.NewInt(1), 64)
		serial, err = rand.Int(rand.Reader, max)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := utils.CreateFile(path, serial.Text(16)); err != nil {
		return nil, err
	}

	return serial, nil
}

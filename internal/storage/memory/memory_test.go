package memory

import (
	"testing"

	"finwatch/internal/storage"
	"finwatch/internal/storage/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store { return New() })
}

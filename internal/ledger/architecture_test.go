package ledger

import (
	"testing"

	"cellarcore/testutil"
)

func TestNoInfraImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "ledger works against domain.TransactionView only")
}

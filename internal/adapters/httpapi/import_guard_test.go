package httpapi

import (
	"testing"

	"blueprintcore/testutil"
)

func TestHandlerDoesNotImportInfra(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "handlers reach storage through core and blob")
}

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/projectledger/internal/app"
	_ "github.com/odyssey-erp/projectledger/internal/testing/guard"
)

func TestMainReturnsInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())
	main()
}

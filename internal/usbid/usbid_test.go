package usbid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# usb.ids excerpt
10c4  Silicon Labs
	89a1  EFM32 CDC Device
	ea60  CP210x UART Bridge
		10c4ea60  subsystem line
1234  Test Vendor
	5678  Test Product
	zzzz  Bad Product
bogus line
C 02  Communications
	02  Abstract (modem)
`

func TestParse(t *testing.T) {
	db := New()
	require.NoError(t, db.Parse(strings.NewReader(sample)))

	assert.Equal(t, "Silicon Labs", db.Vendor(0x10C4))
	assert.Equal(t, "EFM32 CDC Device", db.Product(0x10C4, 0x89A1))
	assert.Equal(t, "CP210x UART Bridge", db.Product(0x10C4, 0xEA60))
	assert.Equal(t, "Test Product", db.Product(0x1234, 0x5678))
	assert.Empty(t, db.Vendor(0xFFFF))
	assert.Empty(t, db.Product(0x1234, 0x0002))

	vendors, products := db.Len()
	assert.Equal(t, 2, vendors)
	assert.Equal(t, 3, products)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usb.ids")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	db := New(filepath.Join(dir, "missing.ids"), path)
	require.NoError(t, db.Load())
	assert.Equal(t, path, db.Source())
	assert.Equal(t, "Silicon Labs", db.Vendor(0x10C4))

	require.NoError(t, os.Remove(path))
	assert.NoError(t, db.Load())
}

func TestLoad_NotFound(t *testing.T) {
	db := New(filepath.Join(t.TempDir(), "usb.ids"))
	assert.ErrorIs(t, db.Load(), ErrNotFound)
	assert.Empty(t, db.Source())
	assert.Empty(t, db.Vendor(0x10C4))
}

func TestNew_DefaultPaths(t *testing.T) {
	assert.Equal(t, DefaultPaths, New().paths)
}

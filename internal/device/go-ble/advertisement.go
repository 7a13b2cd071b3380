package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blemotor/internal/device"
)

// advertisement adapts a go-ble report to device.Advertisement.
// Values are copied at construction: go-ble reuses its report buffers.
type advertisement struct {
	id          string
	name        string
	rssi        int
	connectable bool
	services    []string
	mfr         []byte
}

func newAdvertisement(adv ble.Advertisement) device.Advertisement {
	uuids := adv.Services()
	services := make([]string, len(uuids))
	for i, u := range uuids {
		services[i] = u.String()
	}
	return &advertisement{
		id:          adv.Addr().String(),
		name:        adv.LocalName(),
		rssi:        adv.RSSI(),
		connectable: adv.Connectable(),
		services:    services,
		mfr:         append([]byte(nil), adv.ManufacturerData()...),
	}
}

func (a *advertisement) ID() string               { return a.id }
func (a *advertisement) LocalName() string        { return a.name }
func (a *advertisement) RSSI() int                { return a.rssi }
func (a *advertisement) Connectable() bool        { return a.connectable }
func (a *advertisement) Services() []string       { return a.services }
func (a *advertisement) ManufacturerData() []byte { return a.mfr }

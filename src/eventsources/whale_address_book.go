package eventsources

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"
)

type AddressEntry struct {
	Address  string `csv:"address"`
	Exchange string `csv:"exchange"`
}

var defaultExchangeAddresses = []AddressEntry{
	{Address: "0x3f5ce5fbfe3e9af3971dd833d26ba9b5c936f0be", Exchange: "Binance"},
	{Address: "0xd551234ae421e3bcba99a0da6d736074f22192ff", Exchange: "Binance"},
	{Address: "0x564286362092d8e7936f0549571a803b203aaced", Exchange: "Binance"},
	{Address: "0x0681d8db095565fe8a346fa0277bffde9c0edbbf", Exchange: "Binance"},
	{Address: "0x71660c4005ba85c37ccec55d0c4493e66fe775d3", Exchange: "Coinbase"},
	{Address: "0x503828976d22510aad0201ac7ec88293211d23da", Exchange: "Coinbase"},
	{Address: "0xddfabcdc4d8ffc6d5beaf154f18b778f892a0740", Exchange: "Coinbase"},
	{Address: "0x2910543af39aba0cd09dbb2d50200b3e800a63d2", Exchange: "Kraken"},
	{Address: "0x0a869d79a7052c7f1b55a8ebabbea3420f0d1e13", Exchange: "Kraken"},
	{Address: "0x6cc5f688a315f3dc28a7781717a9a798a59fda7b", Exchange: "OKX"},
	{Address: "0x236f9f97e0e62388479bf9e5ba4889e46b0273c3", Exchange: "OKX"},
	{Address: "0xab5c66752a9e8167967685f1450532fb96d5d24f", Exchange: "Huobi"},
	{Address: "34xp4vrocgjym3xr7ycvpfhocnxv4twseo", Exchange: "Binance"},
	{Address: "3kzh9qayqhnfbg5jytqd5hkmrmrtnsbiu", Exchange: "Coinbase"},
}

// AddressBook maps wallet addresses to exchange names. Lookups ignore case.
type AddressBook struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewAddressBook(entries ...AddressEntry) *AddressBook {
	book := &AddressBook{entries: make(map[string]string)}
	for _, e := range entries {
		book.Add(e.Address, e.Exchange)
	}
	return book
}

func DefaultAddressBook() *AddressBook {
	return NewAddressBook(defaultExchangeAddresses...)
}

// LoadCSV merges address,exchange rows from path into the book.
func (b *AddressBook) LoadCSV(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("AddressBook.LoadCSV: failed to open %s: %w", path, err)
	}
	defer file.Close()

	var rows []*AddressEntry
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return 0, fmt.Errorf("AddressBook.LoadCSV: failed to parse %s: %w", path, err)
	}

	loaded := 0
	for _, row := range rows {
		if row.Address == "" || row.Exchange == "" {
			continue
		}
		b.Add(row.Address, row.Exchange)
		loaded++
	}

	return loaded, nil
}

func (b *AddressBook) Add(address, exchange string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[strings.ToLower(strings.TrimSpace(address))] = strings.TrimSpace(exchange)
}

func (b *AddressBook) Lookup(address string) (string, bool) {
	if address == "" {
		return "", false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	exchange, ok := b.entries[strings.ToLower(address)]
	return exchange, ok
}

func (b *AddressBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.entries)
}

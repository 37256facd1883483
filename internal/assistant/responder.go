// Package assistant answers free-text crypto questions from a fixed rule list
// and keeps the per-user conversation log.
package assistant

import "strings"

type Category int

const (
	CategoryNone Category = iota
	CategoryBitcoin
	CategoryEthereum
	CategoryBlockchain
	CategoryWallet
	CategoryMining
	CategoryNFT
	CategoryDeFi
)

func (c Category) String() string {
	switch c {
	case CategoryBitcoin:
		return "bitcoin"
	case CategoryEthereum:
		return "ethereum"
	case CategoryBlockchain:
		return "blockchain"
	case CategoryWallet:
		return "wallet"
	case CategoryMining:
		return "mining"
	case CategoryNFT:
		return "nft"
	case CategoryDeFi:
		return "defi"
	default:
		return "none"
	}
}

// Rule maps lower-case keywords to a canned response.
type Rule struct {
	Category Category
	Keywords []string
	Response string
}

const Greeting = "Hallo! Ich bin Ihr Krypto-Assistent. Stellen Sie mir Fragen über Kryptowährungen, Markttrends oder spezifische Coins."

const Fallback = "Danke für Ihre Frage. Ich kann derzeit spezifische Informationen zu diesem Thema bereitstellen. Versuchen Sie es mit Fragen zu bekannten Kryptowährungen wie Bitcoin oder Ethereum, oder zu Konzepten wie Blockchain, Wallets oder Mining."

// DefaultRules returns the built-in rules in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: CategoryBitcoin,
			Keywords: []string{"bitcoin", "btc"},
			Response: "Bitcoin (BTC) ist die erste und größte Kryptowährung nach Marktkapitalisierung. Sie wurde 2009 von einer Person oder Gruppe unter dem Pseudonym Satoshi Nakamoto eingeführt.",
		},
		{
			Category: CategoryEthereum,
			Keywords: []string{"ethereum", "eth"},
			Response: "Ethereum (ETH) ist eine dezentrale Computing-Plattform, die Smart Contracts und dezentrale Anwendungen (DApps) ermöglicht. Es wurde von Vitalik Buterin vorgeschlagen und 2015 eingeführt.",
		},
		{
			Category: CategoryBlockchain,
			Keywords: []string{"blockchain"},
			Response: "Eine Blockchain ist eine verteilte Datenbank, die Transaktionen in Blöcken speichert und durch Kryptografie sichert. Jeder Block ist mit dem vorherigen verknüpft, was die Unveränderlichkeit der Daten gewährleistet.",
		},
		{
			Category: CategoryWallet,
			Keywords: []string{"wallet"},
			Response: "Eine Krypto-Wallet ist eine digitale Brieftasche, die Ihre privaten Schlüssel speichert, um Ihre Kryptowährungen zu sichern. Es gibt verschiedene Arten: Hardware-Wallets, Software-Wallets, Mobile-Wallets und Paper-Wallets.",
		},
		{
			Category: CategoryMining,
			Keywords: []string{"mining"},
			Response: "Mining ist der Prozess, bei dem Transaktionen verifiziert und der Blockchain hinzugefügt werden. Miner lösen komplexe mathematische Probleme und werden dafür mit neuen Münzen belohnt.",
		},
		{
			Category: CategoryNFT,
			Keywords: []string{"nft"},
			Response: "NFTs (Non-Fungible Tokens) sind einzigartige digitale Assets, die Eigentum an digitalen Inhalten wie Kunst, Musik oder Sammlerstücken repräsentieren. Sie werden auf Blockchains gespeichert und sind nicht austauschbar.",
		},
		{
			Category: CategoryDeFi,
			Keywords: []string{"defi"},
			Response: "DeFi (Decentralized Finance) bezieht sich auf ein Ökosystem von Finanzanwendungen, die auf Blockchain-Technologie basieren. Es zielt darauf ab, traditionelle Finanzdienstleistungen ohne zentrale Autoritäten anzubieten.",
		},
	}
}

// Responder picks the first rule with a keyword contained in the query.
// Matching is plain substring containment, so short keywords also hit inside
// longer words ("eth" in "Methode").
type Responder struct {
	rules    []Rule
	fallback string
}

// NewResponder copies rules; later changes to the slice have no effect.
func NewResponder(rules []Rule, fallback string) *Responder {
	cp := make([]Rule, len(rules))
	for i, r := range rules {
		kw := make([]string, len(r.Keywords))
		for j, k := range r.Keywords {
			kw[j] = strings.ToLower(k)
		}
		cp[i] = Rule{Category: r.Category, Keywords: kw, Response: r.Response}
	}
	return &Responder{rules: cp, fallback: fallback}
}

func NewDefaultResponder() *Responder {
	return NewResponder(DefaultRules(), Fallback)
}

// Match returns the category and response for query. CategoryNone means no
// rule matched and the response is the fallback.
func (r *Responder) Match(query string) (Category, string) {
	q := strings.ToLower(query)
	for _, rule := range r.rules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(q, kw) {
				return rule.Category, rule.Response
			}
		}
	}
	return CategoryNone, r.fallback
}

func (r *Responder) Respond(query string) string {
	_, resp := r.Match(query)
	return resp
}

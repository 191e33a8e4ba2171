package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Токенизатор грузится лениво: tiktoken при первом обращении скачивает словарь.
var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}

// countTokens оценивает число токенов. Без словаря - грубая оценка 4 символа на токен.
func countTokens(texts ...string) int {
	e := encoding()
	total := 0
	for _, t := range texts {
		if t == "" {
			continue
		}
		if e != nil {
			total += len(e.Encode(t, nil, nil))
		} else {
			total += (len(t) + 3) / 4
		}
	}
	return total
}

// estimateUsage используется, когда бэкенд не вернул usage.
func estimateUsage(prompt []string, completion string) Usage {
	p := countTokens(prompt...)
	c := countTokens(completion)
	return Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c, Estimated: true}
}

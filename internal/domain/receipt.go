package domain

type Receipt struct {
	TxHash      string
	BlockNumber uint64
	BlockHash   string
	Status      uint64
	GasUsed     uint64
}

func (r Receipt) Succeeded() bool {
	return r.Status == 1
}

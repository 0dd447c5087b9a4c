package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/blockstack-inc/stacks-mempool/logger"
	"github.com/blockstack-inc/stacks-mempool/mempool"
	"github.com/blockstack-inc/stacks-mempool/util/panics"
)

var log, _ = logger.Get(logger.SubsystemTags.MPOL)

func main() {
	defer panics.HandlePanic(log, nil)

	cfg, err := parseConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing command-line arguments: %s\n", err)
		os.Exit(1)
	}
	defer logger.LogRotator.Close()

	chain := newDemoChainstate()
	tip := mempool.Tip{}
	if cfg.ConsensusHash != "" {
		decodeFixed(tip.ConsensusHash[:], cfg.ConsensusHash)
		decodeFixed(tip.BlockHeaderHash[:], cfg.BlockHash)
	}
	chain.registerTip(tip, 1)

	mp, err := mempool.Open(cfg.DBPath, mempool.DefaultPolicy(), chain, demoOracle{}, demoCodec{}, nil)
	if err != nil {
		panic(fmt.Errorf("error opening mempool: %s", err))
	}
	defer mp.Close()

	if cfg.SubmitHex != "" {
		raw, err := hex.DecodeString(cfg.SubmitHex)
		if err != nil {
			panic(fmt.Errorf("--submit-hex is not valid hex: %s", err))
		}
		if err := mp.Submit(tip, raw, true); err != nil {
			log.Errorf("submit failed: %s", err)
		} else {
			log.Infof("submitted transaction")
		}
	}

	if cfg.GetTx != "" {
		raw, err := hex.DecodeString(cfg.GetTx)
		if err != nil {
			panic(fmt.Errorf("--get-tx is not valid hex: %s", err))
		}
		var txid [32]byte
		copy(txid[:], raw)

		has, err := mp.HasTx(txid)
		if err != nil {
			panic(err)
		}
		fmt.Printf("has_tx(%s) = %v\n", cfg.GetTx, has)

		if has {
			bytes, _, err := mp.GetTx(txid)
			if err != nil {
				panic(err)
			}
			fmt.Printf("get_tx(%s) = %s\n", cfg.GetTx, hex.EncodeToString(bytes))
		}
	}

	if cfg.PrintDigest {
		digest, err := mp.MakeSyncDigest(1)
		if err != nil {
			panic(err)
		}
		encoded := mempool.EncodeSyncDigest(digest)
		fmt.Printf("sync digest (%d bytes): %s\n", len(encoded), hex.EncodeToString(encoded))
	}
}

func decodeFixed(dst []byte, hexStr string) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		panic(fmt.Errorf("invalid hex: %s", err))
	}
	copy(dst, raw)
}

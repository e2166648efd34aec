// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flexgen holds the peripheral kernel clock to crossbar channel
// tables of the stm32mp2 family. Channels 0 to 6 feed the interconnect
// and are not listed.
package flexgen

import "sort"

var (
	// Full stm32mp25 mapping.
	mp25 = map[string]int{
		"LPTIM1_2":        7,
		"UART2_4":         8,
		"UART3_5":         9,
		"SPI2_3":          10,
		"SPDIFRX":         11,
		"I2C1_2":          12,
		"I3C1_2":          12,
		"I2C3_5":          13,
		"I3C3":            13,
		"I2C4_6":          14,
		"I2C7":            15,
		"SPI1":            16,
		"SPI4_5":          17,
		"SPI6_7":          18,
		"USART1":          19,
		"USART6":          20,
		"UART7_8":         21,
		"UART9":           22,
		"SAI1_MDF1":       23,
		"SAI2":            24,
		"SAI3_4":          25,
		"FDCAN":           26,
		"LTDC":            27,
		"DSIPHY":          28,
		"DCMIPP":          29,
		"CSITXESC":        30,
		"CSIPHY":          31,
		"LVDSPHY":         32,
		"STGEN":           33,
		"USB3PCIEPHY":     34,
		"USBTC":           35,
		"I3C4":            36,
		"SPI8":            37,
		"I2C8":            38,
		"LPUART1":         39,
		"LPTIM3":          40,
		"LPTIM4_5":        41,
		"ADF1":            42,
		"TSDBG":           43,
		"TPIU":            44,
		"ATB":             45,
		"ADC12":           46,
		"ADC3":            47,
		"OSPI1":           48,
		"OSPI2":           49,
		"FMC":             50,
		"SDMMC1":          51,
		"SDMMC2":          52,
		"SDMMC3":          53,
		"ETH1_ETHSW":      54,
		"ETH2":            55,
		"ETH1PTP_ETH2PTP": 56,
		"USB2PHY1":        57,
		"USB2PHY2":        58,
		"ICN_M_GPU":       59,
		"ETHSWREF":        60,
		"MCO1":            61,
		"MCO2":            62,
		"CPU1_EXT2F":      63,
	}

	// stm32mp21 drops the second instances and splits some shared
	// channels.
	mp21 = map[string]int{
		"LPTIM1_2":        7,
		"UART2_4":         8,
		"UART3_5":         9,
		"SPI2":            10,
		"SPI3":            11,
		"SPDIFRX":         12,
		"I2C1_2":          13,
		"I3C1_2":          14,
		"SPI1":            16,
		"SPI4_5":          17,
		"USART1":          18,
		"USART6":          19,
		"UART7":           20,
		"MDF1":            21,
		"SAI1":            22,
		"SAI2":            23,
		"SAI3":            24,
		"SAI4":            25,
		"FDCAN":           26,
		"LTDC":            27,
		"DCMIPP":          29,
		"CSITXESC":        30,
		"CSIPHY":          31,
		"STGEN":           33,
		"I3C3":            36,
		"SPI6":            37,
		"I2C3":            38,
		"LPUART1":         39,
		"LPTIM3":          40,
		"LPTIM4":          41,
		"LPTIM5":          42,
		"TSDBG":           43,
		"TPIU":            44,
		"ATB":             45,
		"ADC1":            46,
		"ADC2":            47,
		"OSPI1":           48,
		"FMC":             50,
		"SDMMC1":          51,
		"SDMMC2":          52,
		"SDMMC3":          53,
		"ETH1":            54,
		"ETH2":            55,
		"ETH1PTP_ETH2PTP": 56,
		"USB2PHY1":        57,
		"USB2PHY2":        58,
		"MCO1":            61,
		"MCO2":            62,
		"CPU1_EXT2F":      63,
	}

	// stm32mp23 is the stm32mp25 without the third I2C/SPI/UART banks.
	mp23 = map[string]int{
		"LPTIM1_2":        7,
		"UART2_4":         8,
		"UART3_5":         9,
		"SPI2_3":          10,
		"SPDIFRX":         11,
		"I2C1_2":          12,
		"I3C1_2":          12,
		"I2C7":            15,
		"SPI1":            16,
		"SPI4_5":          17,
		"USART1":          19,
		"USART6":          20,
		"UART7":           21,
		"SAI1_MDF1":       23,
		"SAI2":            24,
		"SAI3_4":          25,
		"FDCAN":           26,
		"LTDC":            27,
		"DSIPHY":          28,
		"DCMIPP":          29,
		"CSITXESC":        30,
		"CSIPHY":          31,
		"LVDSPHY":         32,
		"STGEN":           33,
		"USB3PCIEPHY":     34,
		"USBTC":           35,
		"I3C4":            36,
		"SPI8":            37,
		"I2C8":            38,
		"LPUART1":         39,
		"LPTIM3":          40,
		"LPTIM4_5":        41,
		"TSDBG":           43,
		"TPIU":            44,
		"ATB":             45,
		"ADC12":           46,
		"ADC3":            47,
		"OSPI1":           48,
		"OSPI2":           49,
		"FMC":             50,
		"SDMMC1":          51,
		"SDMMC2":          52,
		"SDMMC3":          53,
		"ETH1_ETHSW":      54,
		"ETH2":            55,
		"ETH1PTP_ETH2PTP": 56,
		"USB2PHY1":        57,
		"USB2PHY2":        58,
		"ICN_M_GPU":       59,
		"ETHSWREF":        60,
		"MCO1":            61,
		"MCO2":            62,
		"CPU1_EXT2F":      63,
	}

	derivatives = map[string]map[string]int{
		"stm32mp25xx": mp25,
		"stm32mp23xx": mp23,
		"stm32mp21xx": mp21,
	}

	// Reverse maps, channel to every peripheral sharing it.
	channelNames map[string]map[int][]string
)

func init() {
	channelNames = make(map[string]map[int][]string)
	for d, m := range derivatives {
		r := make(map[int][]string)
		for k, v := range m {
			r[v] = append(r[v], k)
		}
		for _, names := range r {
			sort.Strings(names)
		}
		channelNames[d] = r
	}
}

// Derivatives lists the known SoC derivatives.
func Derivatives() []string {
	var ds []string
	for d := range derivatives {
		ds = append(ds, d)
	}
	sort.Strings(ds)
	return ds
}

// Peripherals returns a copy of the peripheral to channel table of d.
func Peripherals(d string) (map[string]int, bool) {
	m, ok := derivatives[d]
	if !ok {
		return nil, false
	}
	c := make(map[string]int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c, true
}

func PeripheralToChannel(d, name string) (int, bool) {
	ch, ok := derivatives[d][name]
	return ch, ok
}

func ChannelToPeripherals(d string, ch int) ([]string, bool) {
	names, ok := channelNames[d][ch]
	return names, ok
}

package assets

// Minimal interfaces: only the methods a rescue bundle touches.

const erc1155ABI = `[
  {"type":"function","name":"safeBatchTransferFrom","stateMutability":"nonpayable","inputs":[
    {"name":"from","type":"address"},
    {"name":"to","type":"address"},
    {"name":"ids","type":"uint256[]"},
    {"name":"amounts","type":"uint256[]"},
    {"name":"data","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"balanceOfBatch","stateMutability":"view","inputs":[
    {"name":"accounts","type":"address[]"},
    {"name":"ids","type":"uint256[]"}],"outputs":[
    {"name":"","type":"uint256[]"}]}
]`

const erc721ABI = `[
  {"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[
    {"name":"from","type":"address"},
    {"name":"to","type":"address"},
    {"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"ownerOf","stateMutability":"view","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[
    {"name":"","type":"address"}]}
]`
